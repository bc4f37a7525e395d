// ABOUTME: Matrix bridge core for limimin
// ABOUTME: Syncs with the homeserver and feeds admitted messages to a single command worker

package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/limimin/internal/commands"
	"github.com/2389/limimin/internal/config"
	"github.com/2389/limimin/internal/dedupe"
)

// queueSize bounds how many commands may wait behind the one being handled.
const queueSize = 64

// networkTimeout is the timeout for Matrix API calls.
const networkTimeout = 10 * time.Second

// uploadTimeout covers media uploads, which can be slow.
const uploadTimeout = 30 * time.Second

// job is one admitted command message.
type job struct {
	roomID  id.RoomID
	sender  id.UserID
	eventID id.EventID
	body    string
}

// Bridge connects Matrix rooms to the stamp command handler.
type Bridge struct {
	config  *config.Config
	matrix  *mautrix.Client
	handler *commands.Handler
	filter  *dedupe.EventFilter
	jobs    chan job
	logger  *slog.Logger
}

// NewBridge creates a new Matrix bridge.
func NewBridge(cfg *config.Config, handler *commands.Handler, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, id.UserID(cfg.Matrix.UserID), cfg.Matrix.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Bridge{
		config:  cfg,
		matrix:  client,
		handler: handler,
		jobs:    make(chan job, queueSize),
		logger:  logger.With("component", "bridge"),
	}, nil
}

// Login authenticates with username and password unless an access token is
// configured.
func (b *Bridge) Login(ctx context.Context) error {
	if b.config.Matrix.AccessToken != "" {
		b.logger.Info("using configured access token", "user_id", b.matrix.UserID.String())
		return nil
	}

	resp, err := b.matrix.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: b.config.Matrix.Username,
		},
		Password:                 b.config.Matrix.Password,
		InitialDeviceDisplayName: "limimin",
		StoreCredentials:         true,
	})
	if err != nil {
		return err
	}

	b.logger.Info("logged in", "user_id", resp.UserID.String(), "device_id", resp.DeviceID.String())
	return nil
}

// UserID returns the bot's Matrix user ID.
func (b *Bridge) UserID() string {
	return b.matrix.UserID.String()
}

// Run starts the bridge and blocks until context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge",
		"homeserver", b.config.Matrix.Homeserver,
		"user_id", b.UserID(),
		"prefix", b.config.Bot.CommandPrefix,
	)

	// Anything sent before now is backlog from the initial sync
	b.filter = dedupe.NewEventFilter(b.matrix.UserID, time.Now())

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)
	syncer.OnEventType(event.StateMember, b.handleMemberEvent)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		b.work(ctx)
	}()

	b.logger.Info("connecting to matrix homeserver")

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(ctx)
	}()

	b.logger.Info("matrix bridge running")

	var err error
	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
	case err = <-syncErr:
		err = fmt.Errorf("matrix sync failed: %w", err)
	}

	cancel()
	<-workerDone
	return err
}

// handleMessageEvent admits a message and queues it for the worker. It never
// blocks the sync loop.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if reason := b.filter.Admit(evt); reason != dedupe.Admitted {
		b.logger.Debug("ignoring event", "event_id", evt.ID.String(), "reason", string(reason))
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}

	roomID := evt.RoomID.String()
	if !isRoomAllowed(b.config.Bot.AllowedRooms, roomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}

	select {
	case b.jobs <- job{roomID: evt.RoomID, sender: evt.Sender, eventID: evt.ID, body: content.Body}:
	default:
		b.logger.Warn("command queue full, dropping message", "room", roomID, "event_id", evt.ID.String())
	}
}

// handleMemberEvent accepts invites into allowed rooms.
func (b *Bridge) handleMemberEvent(ctx context.Context, evt *event.Event) {
	content, ok := evt.Content.Parsed.(*event.MemberEventContent)
	if !ok || content.Membership != event.MembershipInvite || evt.GetStateKey() != b.UserID() {
		return
	}

	roomID := evt.RoomID.String()
	if !isRoomAllowed(b.config.Bot.AllowedRooms, roomID) {
		b.logger.Info("declining invite to non-allowed room", "room", roomID, "inviter", evt.Sender.String())
		return
	}

	joinCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := b.matrix.JoinRoomByID(joinCtx, evt.RoomID); err != nil {
		b.logger.Warn("failed to join room", "room", roomID, "error", err)
		return
	}
	b.logger.Info("joined room", "room", roomID, "inviter", evt.Sender.String())
}

// work handles queued commands one at a time.
func (b *Bridge) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-b.jobs:
			b.process(ctx, j)
		}
	}
}

func (b *Bridge) process(ctx context.Context, j job) {
	resp := &roomResponder{client: b.matrix, roomID: j.roomID, logger: b.logger}
	req := commands.Request{
		Community: j.roomID.String(),
		Sender:    j.sender.String(),
		Text:      j.body,
	}

	handled, err := b.handler.Handle(ctx, req, resp)
	if err != nil {
		b.logger.Error("command failed", "room", req.Community, "event_id", j.eventID.String(), "error", err)
		return
	}
	if handled {
		b.logger.Info("handled command",
			"room", req.Community,
			"sender", req.Sender,
			"content", truncate(j.body, 50),
		)
	}
}

// isRoomAllowed checks if the room is in the allowed list. An empty list
// allows every room.
func isRoomAllowed(allowed []string, roomID string) bool {
	if len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, roomID)
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
