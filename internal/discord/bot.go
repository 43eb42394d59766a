// Package discord provides the Discord bot layer for pascal. It owns the
// discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, gates commands by role and channel, and forwards
// voice presence changes.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pascal/internal/intro"
	"github.com/MrWong99/pascal/pkg/audio"
	discordaudio "github.com/MrWong99/pascal/pkg/audio/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string

	// GuildID scopes command registration to one guild. Empty registers
	// global commands.
	GuildID string
}

// Bot owns the Discord gateway connection and routes interactions
// to registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	platform  *discordaudio.Platform
	router    *CommandRouter
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once

	onTransition   func(intro.Transition)
	onGuildRemoved func(guildID string)
}

// New creates a Bot, registers its gateway handlers and connects to Discord.
func New(_ context.Context, cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		session:  session,
		platform: discordaudio.New(session),
		router:   NewCommandRouter(),
		guildID:  cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(b.handleVoiceStateUpdate)
	session.AddHandler(b.handleGuildDelete)
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord: connected", "user", r.User.Username, "guilds", len(r.Guilds))
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// OnVoiceTransition registers fn to receive every user voice channel change.
// Bot accounts are filtered out.
func (b *Bot) OnVoiceTransition(fn func(intro.Transition)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// OnGuildRemoved registers fn to be called when the bot leaves a guild or the
// guild is deleted.
func (b *Bot) OnGuildRemoved(fn func(guildID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onGuildRemoved = fn
}

// VoiceChannelOf returns the voice channel userID currently sits in.
func (b *Bot) VoiceChannelOf(guildID, userID string) (string, bool) {
	vs, err := b.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}

// Ready reports whether the gateway session has received its initial state.
func (b *Bot) Ready(_ context.Context) error {
	b.session.RLock()
	ready := b.session.DataReady
	b.session.RUnlock()
	if !ready {
		return errors.New("discord: gateway not ready")
	}
	return nil
}

func (b *Bot) handleVoiceStateUpdate(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if s.State != nil && s.State.User != nil && vsu.UserID == s.State.User.ID {
		return
	}
	tr, ok := TransitionFromUpdate(vsu)
	if !ok {
		return
	}
	b.mu.RLock()
	fn := b.onTransition
	b.mu.RUnlock()
	if fn != nil {
		fn(tr)
	}
}

func (b *Bot) handleGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	// Unavailable guilds are outages, not removals.
	if g.Guild == nil || g.Unavailable {
		return
	}
	b.mu.RLock()
	fn := b.onGuildRemoved
	b.mu.RUnlock()
	slog.Info("discord: removed from guild", "guild_id", g.ID)
	if fn != nil {
		fn(g.ID)
	}
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord: commands registered", "count", len(registered), "guild_id", b.guildID)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord and unregisters guild-scoped commands.
// Global commands are left registered.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.guildID != "" && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord: bot closed")
	})
	return closeErr
}
