// Package ingest feeds the message store from the monitored Discord channel.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/commforge/pulse/internal/models"
	"github.com/commforge/pulse/internal/store"
)

// Discord subscribes to the monitored channel and mirrors its messages,
// edits and reactions into the store.
type Discord struct {
	session     *discordgo.Session
	store       *store.Store
	channelID   string
	channelName string
	botID       string
}

// NewDiscord creates the ingest service from a bot token.
func NewDiscord(token, channelID, channelName string, st *store.Store) (*Discord, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	d := &Discord{
		session:     session,
		store:       st,
		channelID:   channelID,
		channelName: channelName,
	}

	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onMessageUpdate)
	session.AddHandler(d.onReactionAdd)
	session.AddHandler(d.onReactionRemove)
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	return d, nil
}

// Session exposes the underlying session for the notification sender.
func (d *Discord) Session() *discordgo.Session {
	return d.session
}

// Start opens the gateway connection.
func (d *Discord) Start(ctx context.Context) error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	if user, err := d.session.User("@me"); err == nil {
		d.botID = user.ID
		log.Printf("[ingest] connected as %s", user.Username)
	}
	go func() {
		<-ctx.Done()
		_ = d.session.Close()
	}()
	return nil
}

// Stop closes the gateway connection.
func (d *Discord) Stop() error {
	return d.session.Close()
}

func (d *Discord) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if !d.monitored(m.ChannelID) || m.Author == nil || m.Author.ID == d.botID || m.Author.Bot {
		return
	}
	if err := d.store.UpsertMessage(FromDiscordMessage(m.Message, d.channelName)); err != nil {
		log.Printf("[ingest] store message %s: %v", m.ID, err)
	}
}

func (d *Discord) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if !d.monitored(m.ChannelID) || m.Author == nil || m.Author.Bot {
		return
	}
	if err := d.store.UpsertMessage(FromDiscordMessage(m.Message, d.channelName)); err != nil {
		log.Printf("[ingest] store edited message %s: %v", m.ID, err)
	}
}

func (d *Discord) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	d.refreshReactions(s, r.ChannelID, r.MessageID)
}

func (d *Discord) onReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	d.refreshReactions(s, r.ChannelID, r.MessageID)
}

// refreshReactions re-reads the message so the stored reaction counts stay
// exact instead of being incrementally drifted.
func (d *Discord) refreshReactions(s *discordgo.Session, channelID, messageID string) {
	if !d.monitored(channelID) {
		return
	}
	msg, err := s.ChannelMessage(channelID, messageID)
	if err != nil {
		log.Printf("[ingest] fetch message %s for reactions: %v", messageID, err)
		return
	}
	if err := d.store.UpdateReactions(messageID, ReactionsFromDiscord(msg.Reactions)); err != nil {
		log.Printf("[ingest] update reactions %s: %v", messageID, err)
	}
}

func (d *Discord) monitored(channelID string) bool {
	return d.channelID == "" || channelID == d.channelID
}

// FromDiscordMessage converts a gateway message into the stored model.
func FromDiscordMessage(m *discordgo.Message, channelName string) models.Message {
	msg := models.Message{
		ID:          m.ID,
		Content:     m.Content,
		ChannelID:   m.ChannelID,
		ChannelName: channelName,
		Timestamp:   m.Timestamp,
		EditedAt:    m.EditedTimestamp,
		Reactions:   ReactionsFromDiscord(m.Reactions),
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorUsername = m.Author.Username
	}
	for _, a := range m.Attachments {
		if a != nil {
			msg.Attachments = append(msg.Attachments, a.URL)
		}
	}
	for _, e := range m.Embeds {
		raw, err := json.Marshal(e)
		if err != nil {
			continue
		}
		msg.Embeds = append(msg.Embeds, json.RawMessage(raw))
	}
	return msg
}

// ReactionsFromDiscord converts gateway reaction groups. Reacting users are
// not carried on gateway payloads; counts are.
func ReactionsFromDiscord(reactions []*discordgo.MessageReactions) []models.Reaction {
	var out []models.Reaction
	for _, r := range reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		out = append(out, models.Reaction{Emoji: r.Emoji.Name, Count: r.Count})
	}
	return out
}
