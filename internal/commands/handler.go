// ABOUTME: Chat command handlers for stamp terms: settings add/del/list/size and fetch
// ABOUTME: Translates parsed commands into TermStore/provisioner calls and text or file replies

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/2389/limimin/internal/stamp"
	"github.com/2389/limimin/internal/store"
)

// DefaultPrefix starts every command when no prefix is configured.
const DefaultPrefix = "!"

// User-facing replies.
const (
	msgInvalidID     = "That id is invalid. It must be between %d and %d."
	msgInvalidTerm   = "That term is invalid. It must only contain alpha-numeric characters."
	msgTermInUse     = "That term is already in use."
	msgTermMissing   = "That term does not exist."
	msgAssigned      = "%s assigned to %s."
	msgDeleted       = "Term %s deleted."
	msgSizeSet       = "Stamp size set to %s."
	msgUnavailable   = "That stamp is not available right now."
	msgPersistFailed = "Could not save the term list, try again later."
	listHeader       = "Term list:\n"
)

// Request is one inbound chat message.
type Request struct {
	// Community scopes the term registry (a Matrix room ID).
	Community string
	Sender    string
	Text      string
}

// Responder delivers replies back to where the request came from.
type Responder interface {
	Reply(ctx context.Context, text string) error
	// ReplyCode sends text rendered as a fixed-width block.
	ReplyCode(ctx context.Context, text string) error
	SendFile(ctx context.Context, path string) error
}

// Assets resolves a stamp to a local file, fetching it if needed.
type Assets interface {
	Ensure(ctx context.Context, size stamp.Size, id int) (string, error)
}

// Config wires a Handler.
type Config struct {
	Store  store.TermStore
	Assets Assets
	// Pref is the size toggle shared by every community.
	Pref   *stamp.Preference
	Prefix string
	Logger *slog.Logger
}

// Handler dispatches commands. It expects to be driven by a single worker so
// registry mutations and size toggles never interleave.
type Handler struct {
	store  store.TermStore
	assets Assets
	pref   *stamp.Preference
	prefix string
	logger *slog.Logger
}

// New creates a Handler from cfg.
func New(cfg Config) *Handler {
	h := &Handler{
		store:  cfg.Store,
		assets: cfg.Assets,
		pref:   cfg.Pref,
		prefix: cfg.Prefix,
		logger: cfg.Logger,
	}
	if h.prefix == "" {
		h.prefix = DefaultPrefix
	}
	if h.pref == nil {
		h.pref = stamp.NewPreference(stamp.Small)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "commands")
	return h
}

// Handle runs the command in req, if any. It reports whether req was a
// command. User mistakes are answered with a reply; the returned error is
// reserved for failures to reach the responder.
func (h *Handler) Handle(ctx context.Context, req Request, resp Responder) (bool, error) {
	name, args, ok := h.parse(req.Text)
	if !ok {
		return false, nil
	}

	h.logger.Debug("handling command", "community", req.Community, "sender", req.Sender, "command", name, "args", args)

	switch name {
	case "settings", "limiset":
		return true, h.settings(ctx, req, args, resp)
	case "fetch", "limi":
		if len(args) != 1 {
			return true, resp.Reply(ctx, fetchUsage(h.prefix))
		}
		return true, h.fetch(ctx, req, args[0], resp)
	case "help":
		return true, resp.Reply(ctx, usage(h.prefix))
	default:
		return false, nil
	}
}

// parse splits "!settings add hello 26" into ("settings", ["add","hello","26"]).
func (h *Handler) parse(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, h.prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, h.prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func (h *Handler) settings(ctx context.Context, req Request, args []string, resp Responder) error {
	if len(args) == 0 {
		return resp.Reply(ctx, usage(h.prefix))
	}

	sub, rest := strings.ToLower(args[0]), args[1:]
	switch {
	case sub == "add" && len(rest) == 2:
		return h.add(ctx, req, rest[0], rest[1], resp)
	case sub == "del" && len(rest) == 1:
		return h.del(ctx, req, rest[0], resp)
	case sub == "list" && len(rest) == 0:
		return h.list(ctx, req, resp)
	case sub == "size" && len(rest) == 0:
		return h.size(ctx, resp)
	default:
		return resp.Reply(ctx, usage(h.prefix))
	}
}

func (h *Handler) add(ctx context.Context, req Request, term, rawID string, resp Responder) error {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		// Non-numeric ids fail the same range check as out-of-range ones
		id = stamp.MinID - 1
	}

	err = h.store.AddTerm(ctx, req.Community, term, id)
	switch {
	case err == nil:
		h.logger.Info("term added", "community", req.Community, "term", term, "id", id)
		return resp.Reply(ctx, fmt.Sprintf(msgAssigned, stamp.FileName(id), term))
	case errors.Is(err, store.ErrInvalidID):
		return resp.Reply(ctx, fmt.Sprintf(msgInvalidID, stamp.MinID, stamp.MaxID))
	case errors.Is(err, store.ErrInvalidTerm):
		return resp.Reply(ctx, msgInvalidTerm)
	case errors.Is(err, store.ErrTermExists):
		return resp.Reply(ctx, msgTermInUse)
	default:
		return h.storeFailure(ctx, "adding term", err, resp)
	}
}

func (h *Handler) del(ctx context.Context, req Request, term string, resp Responder) error {
	err := h.store.DeleteTerm(ctx, req.Community, term)
	switch {
	case err == nil:
		h.logger.Info("term deleted", "community", req.Community, "term", term)
		return resp.Reply(ctx, fmt.Sprintf(msgDeleted, term))
	case errors.Is(err, store.ErrInvalidTerm):
		return resp.Reply(ctx, msgInvalidTerm)
	case errors.Is(err, store.ErrNotFound):
		return resp.Reply(ctx, msgTermMissing)
	default:
		return h.storeFailure(ctx, "deleting term", err, resp)
	}
}

func (h *Handler) list(ctx context.Context, req Request, resp Responder) error {
	terms, err := h.store.ListTerms(ctx, req.Community)
	if err != nil {
		return h.storeFailure(ctx, "listing terms", err, resp)
	}
	return resp.ReplyCode(ctx, RenderList(terms))
}

// RenderList formats terms the way "settings list" shows them.
func RenderList(terms []string) string {
	var b strings.Builder
	b.WriteString(listHeader)
	for _, term := range terms {
		b.WriteString("\t")
		b.WriteString(term)
		b.WriteString("\n")
	}
	return b.String()
}

func (h *Handler) size(ctx context.Context, resp Responder) error {
	size := h.pref.Toggle()
	h.logger.Info("stamp size toggled", "size", size.String())
	return resp.Reply(ctx, fmt.Sprintf(msgSizeSet, size.Label()))
}

func (h *Handler) fetch(ctx context.Context, req Request, term string, resp Responder) error {
	ref, err := h.store.ResolveStampReference(ctx, req.Community, term)
	if errors.Is(err, store.ErrNotFound) {
		return resp.Reply(ctx, msgTermMissing)
	}
	if err != nil {
		return h.storeFailure(ctx, "resolving term", err, resp)
	}

	id, ok := stamp.ParseFileName(ref)
	if !ok {
		h.logger.Error("stored stamp reference is not canonical", "community", req.Community, "term", term, "stamp", ref)
		return resp.Reply(ctx, msgUnavailable)
	}

	size := h.pref.Get()
	path, err := h.assets.Ensure(ctx, size, id)
	if err != nil {
		h.logger.Warn("stamp asset unavailable", "id", id, "size", size.String(), "error", err)
		return resp.Reply(ctx, msgUnavailable)
	}

	if err := resp.SendFile(ctx, path); err != nil {
		return fmt.Errorf("sending %s: %w", path, err)
	}
	return nil
}

// storeFailure logs a storage error and tells the user it did not stick.
func (h *Handler) storeFailure(ctx context.Context, op string, err error, resp Responder) error {
	h.logger.Error("term store failure", "op", op, "error", err)
	return resp.Reply(ctx, msgPersistFailed)
}

func usage(prefix string) string {
	return strings.Join([]string{
		"Stamp commands:",
		fmt.Sprintf("  %ssettings add <term> <id>  assign stamp <id> (%d-%d) to <term>", prefix, stamp.MinID, stamp.MaxID),
		fmt.Sprintf("  %ssettings del <term>       delete a term", prefix),
		fmt.Sprintf("  %ssettings list             list this room's terms", prefix),
		fmt.Sprintf("  %ssettings size             toggle small/large stamps", prefix),
		fmt.Sprintf("  %sfetch <term>              post the stamp for <term>", prefix),
		"",
		fmt.Sprintf("Example: %ssettings add hello 26", prefix),
	}, "\n")
}

func fetchUsage(prefix string) string {
	return fmt.Sprintf("Usage: %sfetch <term>", prefix)
}
