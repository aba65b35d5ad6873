package gateway

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"govibe/internal/chat"
	"govibe/internal/common"
	"govibe/internal/media"
	"govibe/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Command is one inbound JSON frame. Op selects the action; unused fields
// are ignored.
type Command struct {
	Op string `json:"op"`

	// open
	PeerID  string   `json:"peer_id,omitempty"`
	Name    string   `json:"name,omitempty"`
	IsGroup bool     `json:"is_group,omitempty"`
	Members []string `json:"members,omitempty"`

	// message actions
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Mode      string `json:"mode,omitempty"`

	// reply quotes the message by id from the current window
	ReplyTo string `json:"reply_to,omitempty"`

	// settings
	Enabled bool `json:"enabled,omitempty"`

	// search / input
	Term  string `json:"term,omitempty"`
	Input string `json:"input,omitempty"`
}

type frame struct {
	Type    string         `json:"type"`
	View    *chat.View     `json:"view,omitempty"`
	Arrival *chat.Arrival  `json:"arrival,omitempty"`
	Op      string         `json:"op,omitempty"`
	Error   string         `json:"error,omitempty"`
	Results []chat.Message `json:"results,omitempty"`
	Peer    *chat.Peer     `json:"peer,omitempty"`
}

// conn drives one member's websocket: the read pump applies commands to the
// session, the session's callbacks queue outbound frames, the write pump
// drains them. Every arrival and every acted-on command is followed by a
// fresh view snapshot so the client never diffs state itself.
type conn struct {
	ws      *websocket.Conn
	session *chat.Session
	client  *chat.Client
	log     zerolog.Logger
	send    chan frame
	done    chan struct{}
}

func newConn(ws *websocket.Conn, st store.Store, me chat.User, uploader media.Uploader, opts chat.Options, log zerolog.Logger) *conn {
	c := &conn{
		ws:     ws,
		client: chat.NewClient(st, me, log),
		log:    log,
		send:   make(chan frame, 64),
		done:   make(chan struct{}),
	}

	opts.Uploader = uploader
	opts.OnArrival = func(a chat.Arrival) {
		c.push(frame{Type: "arrival", Arrival: &a})
		c.pushView()
	}
	opts.OnNotice = func(n chat.Notice) {
		c.push(frame{Type: "notice", Op: n.Op, Error: n.Err.Error()})
	}
	c.session = chat.NewSession(st, me, opts)
	return c
}

// push queues a frame without blocking the engine; a slow consumer loses
// intermediate frames, never the connection.
func (c *conn) push(f frame) {
	select {
	case c.send <- f:
	default:
		c.log.Warn().Str("type", f.Type).Msg("outbound queue full, frame dropped")
	}
}

func (c *conn) pushView() {
	v := c.session.View()
	c.push(frame{Type: "view", View: &v})
}

func (c *conn) readPump() {
	defer func() {
		c.session.Shutdown()
		close(c.done)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var cmd Command
		if err := c.ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		c.dispatch(cmd)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case f := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *conn) dispatch(cmd Command) {
	ctx := context.Background()
	var err error

	switch cmd.Op {
	case "open":
		err = c.session.Open(ctx, chat.Peer{
			ID:      cmd.PeerID,
			Name:    cmd.Name,
			IsGroup: cmd.IsGroup,
			Members: cmd.Members,
		})
	case "close":
		c.session.Close()
	case "send_text":
		if cmd.ReplyTo != "" {
			err = c.replyTo(ctx, cmd.Text, cmd.ReplyTo)
		} else {
			err = c.session.SendText(ctx, cmd.Text)
		}
	case "edit":
		err = c.session.Edit(ctx, cmd.MessageID, cmd.Text)
	case "delete":
		err = c.session.Delete(ctx, cmd.MessageID, chat.Scope(cmd.Scope))
	case "react":
		err = c.session.React(ctx, cmd.MessageID, cmd.Emoji)
	case "star":
		err = c.session.Star(ctx, cmd.MessageID)
	case "set_disappearing":
		err = c.session.SetDisappearing(ctx, common.DisappearMode(cmd.Mode))
	case "clear_history":
		err = c.session.ClearHistory(ctx)
	case "load_older":
		err = c.session.LoadOlder(ctx)
	case "input":
		c.session.InputChanged(cmd.Input)
		return // no view change
	case "search":
		c.push(frame{Type: "search", Results: c.session.Search(cmd.Term)})
		return
	case "create_group":
		var peer chat.Peer
		peer, err = c.client.CreateGroup(ctx, cmd.Name, cmd.Members)
		if err == nil {
			c.push(frame{Type: "group_created", Peer: &peer})
		}
	case "add_member":
		if len(cmd.Members) == 0 {
			c.push(frame{Type: "error", Op: cmd.Op, Error: "no member given"})
			return
		}
		err = c.client.AddMember(ctx, cmd.PeerID, cmd.Members[0])
	case "leave_group":
		err = c.client.LeaveGroup(ctx, cmd.PeerID)
	case "delete_group":
		err = c.client.DeleteGroup(ctx, cmd.PeerID)
	case "hide":
		err = c.client.HideConversation(ctx, cmd.PeerID)
	case "unhide":
		err = c.client.UnhideConversation(ctx, cmd.PeerID)
	case "set_online":
		err = c.client.SetOnline(ctx, cmd.Enabled)
	case "set_read_receipts":
		err = c.client.SetReadReceipts(ctx, cmd.Enabled)
	default:
		c.push(frame{Type: "error", Op: cmd.Op, Error: "unknown op"})
		return
	}

	if err != nil {
		c.push(frame{Type: "error", Op: cmd.Op, Error: err.Error()})
		return
	}
	c.pushView()
}

func (c *conn) replyTo(ctx context.Context, text, messageID string) error {
	for _, r := range c.session.View().Rows {
		if r.State == chat.RowConfirmed && r.Message.ID == messageID {
			return c.session.Reply(ctx, text, r.Message)
		}
	}
	return chat.ErrMessageNotFound
}
