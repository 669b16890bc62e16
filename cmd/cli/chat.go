package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cipherchat/internal/client/channel"
	"cipherchat/internal/client/msgsync"
	"cipherchat/internal/errs"
	"cipherchat/internal/models"
	"cipherchat/internal/ui"
)

// emitterProxy lets the engine outlive individual connections: redials
// swap the live conn without rebuilding the engine.
type emitterProxy struct {
	mu   sync.Mutex
	conn *channel.Conn
}

func (p *emitterProxy) set(conn *channel.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
}

func (p *emitterProxy) Emit(event string, payload any) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return errs.ErrClosed
	}
	return conn.Emit(event, payload)
}

// connect dials the realtime endpoint. attempt 0 is the initial dial;
// redials back off exponentially, capped at 30s.
func connect(addr, token string, attempt int) tea.Cmd {
	return func() tea.Msg {
		if attempt > 0 {
			backoff := time.Second << (attempt - 1)
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			time.Sleep(backoff)
		}
		conn, err := channel.Dial(addr, token)
		if err != nil {
			return redialMsg{attempt: attempt + 1}
		}
		return connectedMsg{conn}
	}
}

func waitDisconnect(conn *channel.Conn) tea.Cmd {
	return func() tea.Msg {
		<-conn.Done()
		return disconnectedMsg{}
	}
}

func waitSignal(e *msgsync.Engine) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-e.Signals()
		if !ok {
			return nil
		}
		return signalMsg(s)
	}
}

func (m model) handleConnected(conn *channel.Conn) (tea.Model, tea.Cmd) {
	if m.sess == nil {
		// logged out while the dial was in flight
		conn.Close()
		return m, nil
	}

	if m.detach != nil {
		m.detach()
	}
	m.conn = conn
	m.emitter.set(conn)
	m.detach = msgsync.Attach(conn, m.engine, m.tracker)

	if err := conn.Emit(models.EventJoin, m.sess.UserTag); err != nil {
		return m, func() tea.Msg { return disconnectedMsg{} }
	}

	m.online = true
	m.notice = ""
	return m, waitDisconnect(conn)
}

type peerEntry struct {
	Tag    string
	Name   string
	Online bool
}

// peers merges the live roster with accepted-but-offline contacts.
func (m model) peers() []peerEntry {
	seen := make(map[string]bool)
	var out []peerEntry
	for _, tag := range m.tracker.Snapshot() {
		seen[tag] = true
		out = append(out, peerEntry{Tag: tag, Name: m.contactName(tag), Online: true})
	}
	for _, c := range m.contacts {
		if c.Status == models.ContactAccepted && !seen[c.Tag] {
			out = append(out, peerEntry{Tag: c.Tag, Name: c.Username})
		}
	}
	return out
}

func (m model) contactName(tag string) string {
	for _, c := range m.contacts {
		if c.Tag == tag {
			return c.Username
		}
	}
	return ""
}

// selectNext cycles the active conversation through the peer list.
func (m *model) selectNext(step int) {
	peers := m.peers()
	if len(peers) == 0 {
		m.notice = "nobody to talk to yet"
		return
	}

	current := -1
	for i, p := range peers {
		if p.Tag == m.engine.Selected() {
			current = i
			break
		}
	}
	next := peers[(current+step+len(peers))%len(peers)]
	m.engine.Select(next.Tag)
	delete(m.unread, next.Tag)
}

func (m model) lastOwnMessage() (models.Message, bool) {
	selected := m.engine.Selected()
	if selected == "" {
		return models.Message{}, false
	}
	conv := m.engine.Conversation(selected)
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].From == m.sess.UserTag {
			return conv[i], true
		}
	}
	return models.Message{}, false
}

func (m model) updateChat(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Type == tea.KeyTab:
			m.selectNext(1)
			return m, nil

		case key.Type == tea.KeyShiftTab:
			m.selectNext(-1)
			return m, nil

		case key.Type == tea.KeyEnter:
			text := m.composer.Value()
			if text == "" {
				return m, nil
			}
			if _, err := m.engine.Send(text); err != nil {
				m.notice = sendFailure(err)
				return m, nil
			}
			m.composer.SetValue("")
			m.notice = ""
			return m, nil

		case key.String() == "ctrl+e":
			text := m.composer.Value()
			if text == "" {
				m.notice = "type the replacement text first"
				return m, nil
			}
			last, ok := m.lastOwnMessage()
			if !ok {
				m.notice = "nothing of yours to edit here"
				return m, nil
			}
			if err := m.engine.Edit(last.ID, text); err != nil {
				m.notice = sendFailure(err)
				return m, nil
			}
			m.composer.SetValue("")
			m.notice = "edited"
			return m, nil

		case key.String() == "ctrl+d":
			last, ok := m.lastOwnMessage()
			if !ok {
				m.notice = "nothing of yours to delete here"
				return m, nil
			}
			if err := m.engine.Delete(last.ID); err != nil {
				m.notice = sendFailure(err)
				return m, nil
			}
			m.notice = "delete requested"
			return m, nil

		case key.String() == "ctrl+s":
			m.state = stateSettings
			m.settingsMode = settingsRename
			m.settingsInput.SetValue("")
			m.settingsInput.Focus()
			m.composer.Blur()
			return m, textinput.Blink
		}
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func sendFailure(err error) string {
	switch {
	case errors.Is(err, errs.ErrRateLimited):
		return "sending too fast, give it a moment"
	case errors.Is(err, errs.ErrNoActiveConversation):
		return "pick a contact first (Tab)"
	case errors.Is(err, errs.ErrNotOwned):
		return "that message is not yours"
	case errors.Is(err, errs.ErrClosed):
		return "offline, reconnecting"
	default:
		return err.Error()
	}
}

func statusGlyph(s models.DeliveryStatus) string {
	switch s {
	case models.StatusSent:
		return "✓"
	case models.StatusDelivered:
		return "✓✓"
	case models.StatusFailed:
		return "✗"
	default:
		return "…"
	}
}

func (m model) viewChat(header string) string {
	selected := m.engine.Selected()

	var rosterLines []string
	rosterLines = append(rosterLines, ui.InputStyle.Render("Contacts"))
	peers := m.peers()
	if len(peers) == 0 {
		rosterLines = append(rosterLines, ui.MutedStyle.Render("(empty)"))
	}
	for _, p := range peers {
		dot := ui.MutedStyle.Render("○ ")
		if p.Online {
			dot = ui.OnlineDotStyle.Render("● ")
		}
		label := p.Tag
		if p.Tag == selected {
			label = ui.SelectedPeerStyle.Render(label)
		}
		if n := m.unread[p.Tag]; n > 0 {
			label += ui.UnreadStyle.Render(fmt.Sprintf(" (%d)", n))
		}
		rosterLines = append(rosterLines, dot+label)
	}
	rosterPane := ui.RosterStyle.Render(strings.Join(rosterLines, "\n"))

	var convLines []string
	if selected == "" {
		convLines = append(convLines, ui.MutedStyle.Render("Tab selects a contact."))
	} else {
		convLines = append(convLines, ui.InputStyle.Render(selected))
		for _, msg := range m.engine.Conversation(selected) {
			line := fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Format("15:04"), msg.Username, msg.Body)
			if msg.From == m.sess.UserTag {
				line = ui.OwnMessageStyle.Render(line) + " " + ui.StatusTagStyle.Render(statusGlyph(msg.Status))
			} else {
				line = ui.PeerMessageStyle.Render(line)
			}
			convLines = append(convLines, line)
		}
	}
	convPane := strings.Join(convLines, "\n")

	body := lipgloss.JoinHorizontal(lipgloss.Top, rosterPane, convPane)

	var statusLine string
	snap := m.engine.Snapshot()
	switch {
	case snap.Alert != nil:
		statusLine = ui.AlertStyle.Render(snap.Alert.Reason)
	case m.err != nil:
		statusLine = ui.ErrorTextStyle.Render(friendly(m.err))
	case m.notice != "":
		statusLine = ui.MutedStyle.Render(m.notice)
	case !m.online:
		statusLine = ui.MutedStyle.Render("offline")
	}

	footer := ui.FooterStyle.Render("▸ Enter: send • Tab: switch contact • Ctrl+E: edit last • Ctrl+D: delete last • Ctrl+S: settings • Ctrl+C: exit")

	return fmt.Sprintf("%s%s\n\n%s\n%s\n%s", header, body, m.composer.View(), statusLine, footer)
}

func (m model) viewSettings(header string) string {
	subHeader := ui.SubHeaderStyle.Render("Settings") + "\n"

	content := ui.InputStyle.Render("Signed in as ") + m.sess.UserTag
	if m.sess.Username != "" {
		content += ui.MutedStyle.Render(" (" + m.sess.Username + ")")
	}
	content += "\n\n"

	label := "New display name:"
	if m.settingsMode == settingsAddContact {
		label = "Request contact by tag:"
	}
	content += ui.InputStyle.Render(label) + "\n" + m.settingsInput.View() + "\n\n"

	content += ui.InputStyle.Render("Contacts") + "\n"
	if len(m.contacts) == 0 {
		content += ui.MutedStyle.Render("(none)")
	}
	for _, c := range m.contacts {
		line := c.Tag
		if c.Username != "" {
			line += " (" + c.Username + ")"
		}
		switch c.Status {
		case models.ContactPending:
			line += ui.UnreadStyle.Render(" pending")
		case models.ContactBlocked:
			line += ui.ErrorTextStyle.Render(" blocked")
		}
		content += line + "\n"
	}

	if m.err != nil {
		content += "\n" + ui.ErrorTextStyle.Render(friendly(m.err))
	} else if m.notice != "" {
		content += "\n" + ui.MutedStyle.Render(m.notice)
	}

	body := ui.CardStyle.Render(content)
	footer := ui.FooterStyle.Render("▸ Tab: rename/add • Enter: apply • Ctrl+A: accept pending • Ctrl+R: reject pending • Ctrl+L: log out • Ctrl+X: delete account • Esc: back")

	return fmt.Sprintf("%s%s%s\n%s", header, subHeader, body, footer)
}
