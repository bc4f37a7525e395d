// ABOUTME: Matrix implementation of the command Responder
// ABOUTME: Sends plain notices, goldmark-rendered code blocks and uploaded stamp images

package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/limimin/internal/commands"
)

// matrixSender is the part of *mautrix.Client the responder uses.
type matrixSender interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	UploadBytesWithName(ctx context.Context, data []byte, contentType, fileName string) (*mautrix.RespMediaUpload, error)
}

// roomResponder replies into a single room.
type roomResponder struct {
	client matrixSender
	roomID id.RoomID
	logger *slog.Logger
}

var _ commands.Responder = (*roomResponder)(nil)

func (r *roomResponder) Reply(ctx context.Context, text string) error {
	return r.send(ctx, textContent(text))
}

func (r *roomResponder) ReplyCode(ctx context.Context, text string) error {
	content, err := codeContent(text)
	if err != nil {
		return err
	}
	return r.send(ctx, content)
}

func (r *roomResponder) SendFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading stamp: %w", err)
	}

	name := filepath.Base(path)
	mimeType := http.DetectContentType(data)

	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	upload, err := r.client.UploadBytesWithName(uploadCtx, data, mimeType, name)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}

	r.logger.Debug("uploaded stamp", "room", r.roomID.String(), "file", name, "uri", upload.ContentURI.String())
	return r.send(ctx, imageContent(name, mimeType, data, upload.ContentURI.CUString()))
}

func (r *roomResponder) send(ctx context.Context, content *event.MessageEventContent) error {
	sendCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := r.client.SendMessageEvent(sendCtx, r.roomID, event.EventMessage, content); err != nil {
		return fmt.Errorf("sending to %s: %w", r.roomID, err)
	}
	return nil
}

func textContent(text string) *event.MessageEventContent {
	return &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}
}

// codeContent renders text as a preformatted block. Clients without HTML
// support fall back to the plain body.
func codeContent(text string) (*event.MessageEventContent, error) {
	var html bytes.Buffer
	if err := goldmark.Convert([]byte("```\n"+text+"```\n"), &html); err != nil {
		return nil, fmt.Errorf("rendering code block: %w", err)
	}
	return &event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          text,
		Format:        event.FormatHTML,
		FormattedBody: html.String(),
	}, nil
}

func imageContent(name, mimeType string, data []byte, uri id.ContentURIString) *event.MessageEventContent {
	info := &event.FileInfo{
		MimeType: mimeType,
		Size:     len(data),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}
	return &event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    name,
		URL:     uri,
		Info:    info,
	}
}
