// Command cli is the encrypted chat terminal client.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"cipherchat/internal/client/api"
	"cipherchat/internal/client/channel"
	"cipherchat/internal/client/msgsync"
	"cipherchat/internal/client/roster"
	"cipherchat/internal/client/session"
	"cipherchat/internal/config"
	"cipherchat/internal/crypto"
	"cipherchat/internal/errs"
	"cipherchat/internal/models"
	"cipherchat/internal/ui"
)

type state int

const (
	stateSetup state = iota
	stateAuth
	stateChat
	stateSettings
)

// settings screen input targets
const (
	settingsRename = iota
	settingsAddContact
)

type (
	errMsg      struct{ err error }
	authedMsg   struct{ res api.AuthResult }
	renamedMsg  struct{ username string }
	deletedMsg  struct{}
	contactsMsg struct{ contacts []models.Contact }

	connectedMsg    struct{ conn *channel.Conn }
	redialMsg       struct{ attempt int }
	disconnectedMsg struct{}
	signalMsg       msgsync.Signal
	tickMsg         time.Time
)

type model struct {
	state state
	cfg   *config.Config
	store *session.Store
	sess  *session.Session

	backend *api.Client
	emitter *emitterProxy
	conn    *channel.Conn
	engine  *msgsync.Engine
	tracker *roster.Tracker
	detach  func()
	online  bool

	setupInputs []textinput.Model
	setupFocus  int

	registering bool
	authInputs  []textinput.Model
	authFocus   int

	composer textinput.Model
	unread   map[string]int

	settingsInput textinput.Model
	settingsMode  int
	contacts      []models.Contact

	notice   string
	err      error
	quitting bool
}

func initialModel() model {
	cfg, _ := config.LoadConfig()

	sessPath, _ := session.DefaultPath()
	store := session.NewStore(sessPath)

	addrInput := textinput.New()
	addrInput.Placeholder = config.DefaultServerAddr
	addrInput.SetValue(config.DefaultServerAddr)
	addrInput.Width = 40

	keyInput := textinput.New()
	keyInput.Placeholder = "shared secret"
	keyInput.EchoMode = textinput.EchoPassword
	keyInput.Width = 40

	tagInput := textinput.New()
	tagInput.Placeholder = "@tag"
	tagInput.Width = 40

	usernameInput := textinput.New()
	usernameInput.Placeholder = "display name"
	usernameInput.Width = 40

	passwordInput := textinput.New()
	passwordInput.Placeholder = "password"
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.Width = 40

	composer := textinput.New()
	composer.Placeholder = "message"
	composer.Width = 56

	settingsInput := textinput.New()
	settingsInput.Width = 40

	m := model{
		cfg:           cfg,
		store:         store,
		setupInputs:   []textinput.Model{addrInput, keyInput},
		authInputs:    []textinput.Model{tagInput, usernameInput, passwordInput},
		composer:      composer,
		settingsInput: settingsInput,
		unread:        make(map[string]int),
	}

	if cfg == nil {
		m.state = stateSetup
		m.setupInputs[0].Focus()
		return m
	}

	m.backend = api.New(cfg.ServerAddr)

	if sess, err := store.Load(); err == nil && sess != nil {
		m.startSession(sess)
		m.state = stateChat
		m.composer.Focus()
		return m
	}

	m.state = stateAuth
	m.authInputs[0].Focus()
	return m
}

// startSession builds the per-login machinery: roster, engine, and the
// emitter indirection that survives redials.
func (m *model) startSession(sess *session.Session) {
	m.sess = sess
	m.backend.SetToken(sess.Token)
	m.emitter = &emitterProxy{}
	m.tracker = roster.New(sess.UserTag)
	m.engine = msgsync.New(m.emitter, crypto.New(m.cfg.SharedKey), sess.UserTag, sess.Username, msgsync.Policy{}, nil)
	m.unread = make(map[string]int)
	m.contacts = nil
	m.notice = ""
	m.err = nil
}

// endSession tears the realtime binding down deterministically and
// drops all per-login state. The session file is cleared separately.
func (m *model) endSession() {
	if m.detach != nil {
		m.detach()
		m.detach = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.engine != nil {
		m.engine.Reset()
		// unblocks the waitSignal goroutine of this session
		m.engine.Close()
	}
	if m.tracker != nil {
		m.tracker.Clear()
	}
	m.sess = nil
	m.online = false
	m.contacts = nil
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{tea.EnterAltScreen, textinput.Blink, tick()}
	if m.state == stateChat {
		// resumed session: reconnect and rehydrate contacts
		cmds = append(cmds,
			connect(m.cfg.ServerAddr, m.sess.Token, 0),
			waitSignal(m.engine),
			m.fetchContacts(),
		)
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			m.endSession()
			return m, tea.Quit
		}

	case tickMsg:
		// periodic repaint so transient alerts auto-dismiss
		return m, tick()

	case errMsg:
		m.err = msg.err
		return m, nil

	case authedMsg:
		sess := &session.Session{UserTag: msg.res.Tag, Username: msg.res.Username, Token: msg.res.Token}
		if err := m.store.Save(sess); err != nil {
			m.err = err
			return m, nil
		}
		m.startSession(sess)
		m.state = stateChat
		m.composer.Focus()
		return m, tea.Batch(
			connect(m.cfg.ServerAddr, sess.Token, 0),
			waitSignal(m.engine),
			m.fetchContacts(),
		)

	case connectedMsg:
		return m.handleConnected(msg.conn)

	case disconnectedMsg:
		if m.sess == nil || m.conn == nil {
			return m, nil
		}
		m.online = false
		m.tracker.Clear()
		m.notice = "connection lost, reconnecting"
		return m, connect(m.cfg.ServerAddr, m.sess.Token, 1)

	case redialMsg:
		if m.sess == nil {
			return m, nil
		}
		if msg.attempt > 5 {
			// the relay stayed unreachable, or the token expired
			m.endSession()
			_ = m.store.Clear()
			m.state = stateAuth
			m.authFocus = 0
			m.focusAuth()
			m.err = fmt.Errorf("could not reach %s, log in again", m.cfg.ServerAddr)
			return m, nil
		}
		m.notice = fmt.Sprintf("reconnecting (attempt %d)", msg.attempt)
		return m, connect(m.cfg.ServerAddr, m.sess.Token, msg.attempt)

	case signalMsg:
		if m.engine == nil {
			return m, nil
		}
		if msgsync.Signal(msg).Kind == msgsync.SignalNotify {
			m.unread[msgsync.Signal(msg).Peer]++
		}
		return m, waitSignal(m.engine)

	case contactsMsg:
		m.contacts = msg.contacts
		return m, nil

	case renamedMsg:
		m.sess.Username = msg.username
		_ = m.store.Save(m.sess)
		m.notice = "display name updated"
		return m, nil

	case deletedMsg:
		m.endSession()
		_ = m.store.Clear()
		m.state = stateAuth
		m.authFocus = 0
		m.focusAuth()
		m.notice = "account deleted"
		return m, nil
	}

	switch m.state {
	case stateSetup:
		return m.updateSetup(msg)
	case stateAuth:
		return m.updateAuth(msg)
	case stateChat:
		return m.updateChat(msg)
	case stateSettings:
		return m.updateSettings(msg)
	}
	return m, nil
}

func (m model) updateSetup(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyTab, tea.KeyShiftTab:
			m.setupFocus = (m.setupFocus + 1) % len(m.setupInputs)
			for i := range m.setupInputs {
				if i == m.setupFocus {
					m.setupInputs[i].Focus()
				} else {
					m.setupInputs[i].Blur()
				}
			}
			return m, textinput.Blink

		case tea.KeyEnter:
			addr := m.setupInputs[0].Value()
			key := m.setupInputs[1].Value()
			if addr == "" {
				addr = config.DefaultServerAddr
			}
			if key == "" {
				m.err = fmt.Errorf("shared secret cannot be empty")
				return m, nil
			}

			cfg := &config.Config{ServerAddr: addr, SharedKey: key}
			if err := config.SaveConfig(cfg); err != nil {
				m.err = err
				return m, nil
			}

			m.cfg = cfg
			m.backend = api.New(cfg.ServerAddr)
			m.err = nil
			m.state = stateAuth
			m.authFocus = 0
			m.focusAuth()
			return m, textinput.Blink
		}
	}

	var cmd tea.Cmd
	m.setupInputs[m.setupFocus], cmd = m.setupInputs[m.setupFocus].Update(msg)
	return m, cmd
}

// focusAuth moves focus to the current auth field, skipping the
// username field outside register mode.
func (m *model) focusAuth() {
	for i := range m.authInputs {
		m.authInputs[i].Blur()
	}
	m.authInputs[m.authFocus].Focus()
}

func (m model) updateAuth(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Type == tea.KeyTab || key.Type == tea.KeyShiftTab:
			step := 1
			if key.Type == tea.KeyShiftTab {
				step = len(m.authInputs) - 1
			}
			for {
				m.authFocus = (m.authFocus + step) % len(m.authInputs)
				if m.authFocus != 1 || m.registering {
					break
				}
			}
			m.focusAuth()
			return m, textinput.Blink

		case key.String() == "ctrl+r":
			m.registering = !m.registering
			if !m.registering && m.authFocus == 1 {
				m.authFocus = 0
				m.focusAuth()
			}
			m.err = nil
			return m, nil

		case key.Type == tea.KeyEnter:
			tag := m.authInputs[0].Value()
			username := m.authInputs[1].Value()
			password := m.authInputs[2].Value()
			if tag == "" || password == "" {
				m.err = fmt.Errorf("tag and password are required")
				return m, nil
			}
			m.err = nil
			m.notice = "signing in"
			if m.registering {
				return m, m.register(tag, username, password)
			}
			return m, m.login(tag, password)
		}
	}

	var cmd tea.Cmd
	m.authInputs[m.authFocus], cmd = m.authInputs[m.authFocus].Update(msg)
	return m, cmd
}

func (m model) updateSettings(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Type == tea.KeyEsc:
			m.state = stateChat
			m.err = nil
			m.composer.Focus()
			m.settingsInput.Blur()
			return m, textinput.Blink

		case key.Type == tea.KeyTab || key.Type == tea.KeyShiftTab:
			m.settingsMode = (m.settingsMode + 1) % 2
			m.settingsInput.SetValue("")
			return m, nil

		case key.Type == tea.KeyEnter:
			value := m.settingsInput.Value()
			if value == "" {
				return m, nil
			}
			m.settingsInput.SetValue("")
			m.err = nil
			if m.settingsMode == settingsRename {
				return m, m.rename(value)
			}
			return m, m.requestContact(value)

		case key.String() == "ctrl+a":
			if c, ok := m.firstPending(); ok {
				return m, m.acceptContact(c.ID.String())
			}
			m.notice = "no pending requests"
			return m, nil

		case key.String() == "ctrl+r":
			if c, ok := m.firstPending(); ok {
				return m, m.rejectContact(c.ID.String())
			}
			m.notice = "no pending requests"
			return m, nil

		case key.String() == "ctrl+l":
			m.endSession()
			_ = m.store.Clear()
			m.state = stateAuth
			m.authFocus = 0
			m.focusAuth()
			m.notice = "logged out"
			return m, textinput.Blink

		case key.String() == "ctrl+x":
			return m, m.deleteAccount()
		}
	}

	var cmd tea.Cmd
	m.settingsInput, cmd = m.settingsInput.Update(msg)
	return m, cmd
}

func (m model) firstPending() (models.Contact, bool) {
	for _, c := range m.contacts {
		if c.Status == models.ContactPending {
			return c, true
		}
	}
	return models.Contact{}, false
}

// backend calls, each wrapped as a tea.Cmd

func (m model) login(tag, password string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		res, err := backend.Login(ctx, tag, password)
		if err != nil {
			return errMsg{err}
		}
		return authedMsg{res}
	}
}

func (m model) register(tag, username, password string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		res, err := backend.Register(ctx, tag, username, password)
		if err != nil {
			return errMsg{err}
		}
		return authedMsg{res}
	}
}

func (m model) fetchContacts() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		contacts, err := backend.Contacts(ctx)
		if err != nil {
			return errMsg{err}
		}
		return contactsMsg{contacts}
	}
}

func (m model) rename(username string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := backend.UpdateUsername(ctx, username); err != nil {
			return errMsg{err}
		}
		return renamedMsg{username}
	}
}

func (m model) requestContact(tag string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := backend.RequestContact(ctx, tag); err != nil {
			return errMsg{err}
		}
		contacts, err := backend.Contacts(ctx)
		if err != nil {
			return errMsg{err}
		}
		return contactsMsg{contacts}
	}
}

func (m model) acceptContact(id string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := backend.AcceptContact(ctx, id); err != nil {
			return errMsg{err}
		}
		contacts, err := backend.Contacts(ctx)
		if err != nil {
			return errMsg{err}
		}
		return contactsMsg{contacts}
	}
}

func (m model) rejectContact(id string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := backend.RejectContact(ctx, id); err != nil {
			return errMsg{err}
		}
		contacts, err := backend.Contacts(ctx)
		if err != nil {
			return errMsg{err}
		}
		return contactsMsg{contacts}
	}
}

func (m model) deleteAccount() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := backend.DeleteAccount(ctx); err != nil {
			return errMsg{err}
		}
		return deletedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) View() string {
	if m.quitting {
		return "Bye!\n"
	}

	header := ui.HeaderStyle.Render(" CIPHERCHAT ") + "\n"
	var subHeader, body, footer string

	switch m.state {
	case stateSetup:
		subHeader = ui.SubHeaderStyle.Render("First-time Setup") + "\n"
		content := ui.InputStyle.Render("Relay address:") + "\n" + m.setupInputs[0].View() + "\n\n"
		content += ui.InputStyle.Render("Shared secret:") + "\n" + m.setupInputs[1].View()
		if m.err != nil {
			content += "\n\n" + ui.ErrorTextStyle.Render(m.err.Error())
		}
		body = ui.CardStyle.Render(content)
		footer = ui.FooterStyle.Render("▸ Tab: next field • Enter: save • Ctrl+C: exit")

	case stateAuth:
		mode := "Sign In"
		if m.registering {
			mode = "Create Account"
		}
		subHeader = ui.SubHeaderStyle.Render(mode) + "\n"

		content := ui.InputStyle.Render("Tag:") + "\n" + m.authInputs[0].View() + "\n\n"
		if m.registering {
			content += ui.InputStyle.Render("Display name:") + "\n" + m.authInputs[1].View() + "\n\n"
		}
		content += ui.InputStyle.Render("Password:") + "\n" + m.authInputs[2].View()
		if m.err != nil {
			content += "\n\n" + ui.ErrorTextStyle.Render(m.err.Error())
		}
		body = ui.CardStyle.Render(content)
		footer = ui.FooterStyle.Render("▸ Enter: submit • Ctrl+R: toggle register • Tab: next field • Ctrl+C: exit")

	case stateChat:
		return m.viewChat(header)

	case stateSettings:
		return m.viewSettings(header)
	}

	return fmt.Sprintf("%s%s%s\n%s", header, subHeader, body, footer)
}

// friendly flattens wrapped backend errors for display.
func friendly(err error) string {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return "not authorized: " + err.Error()
	case errors.Is(err, errs.ErrRateLimited):
		return "sending too fast, give it a moment"
	default:
		return err.Error()
	}
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running cipherchat: %v\n", err)
		os.Exit(1)
	}
}
