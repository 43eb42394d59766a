// Package commands implements the pascal slash command handlers.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pascal/internal/discord"
	"github.com/MrWong99/pascal/internal/history"
	"github.com/MrWong99/pascal/internal/playback"
)

// commandTimeout bounds a single command, covering join, fetch and play.
const commandTimeout = 60 * time.Second

// topCount is the number of entries /top shows.
const topCount = 10

// Orchestrator is the subset of [*playback.Orchestrator] the commands use.
type Orchestrator interface {
	Play(ctx context.Context, req playback.Request) (playback.Ack, error)
	Stop(ctx context.Context, guildID string) (playback.Ack, error)
	ListSounds(ctx context.Context) ([]string, error)
	Autocomplete(ctx context.Context, query string) ([]string, error)
	Top(ctx context.Context, guildID string, n int) ([]history.Count, error)
}

// VoiceLocator finds the voice channel a user sits in. [*discord.Bot]
// implements it.
type VoiceLocator interface {
	VoiceChannelOf(guildID, userID string) (string, bool)
}

// SoundCommands holds the dependencies for /play, /list, /stop and /top.
type SoundCommands struct {
	orch   Orchestrator
	perms  *discord.PermissionChecker
	voices VoiceLocator
}

// NewSoundCommands creates a SoundCommands.
func NewSoundCommands(orch Orchestrator, perms *discord.PermissionChecker, voices VoiceLocator) *SoundCommands {
	return &SoundCommands{orch: orch, perms: perms, voices: voices}
}

// Register registers the sound commands with the router.
func (sc *SoundCommands) Register(router *discord.CommandRouter) {
	defs := sc.Definitions()
	router.RegisterCommand("play", defs[0], sc.handlePlay)
	router.RegisterAutocomplete("play", sc.handleAutocomplete)
	router.RegisterCommand("list", defs[1], sc.handleList)
	router.RegisterCommand("stop", defs[2], sc.handleStop)
	router.RegisterCommand("top", defs[3], sc.handleTop)
}

// Definitions returns the ApplicationCommand definitions for Discord, in the
// order play, list, stop, top.
func (sc *SoundCommands) Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a sound or a link in your voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "sound",
					Description:  "Name of the sound to play. Use the list command to see all possible values",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        "list",
			Description: "List all available sounds",
		},
		{
			Name:        "stop",
			Description: "Stop the sound that is playing",
		},
		{
			Name:        "top",
			Description: "Show the most played sounds",
		},
	}
}

// gate answers and reports false when the interaction may not proceed.
func (sc *SoundCommands) gate(s discord.Responder, i *discordgo.InteractionCreate, control bool) bool {
	if i.GuildID == "" {
		discord.RespondEphemeral(s, i, "Sounds only work in a server.")
		return false
	}
	if !sc.perms.AllowedChannel(i) {
		discord.RespondEphemeral(s, i, "Commands are not available in this channel.")
		return false
	}
	if control && !sc.perms.IsController(i) {
		discord.RespondEphemeral(s, i, "You don't have permission to control playback.")
		return false
	}
	return true
}

// handlePlay handles /play.
func (sc *SoundCommands) handlePlay(s discord.Responder, i *discordgo.InteractionCreate) {
	if !sc.gate(s, i, true) {
		return
	}
	arg := optionString(i.ApplicationCommandData().Options, "sound")
	if strings.TrimSpace(arg) == "" {
		discord.RespondEphemeral(s, i, "Tell me which sound to play.")
		return
	}

	userID := discord.InteractionUserID(i)
	channelID, _ := sc.voices.VoiceChannelOf(i.GuildID, userID)

	// Joining and fetching links can exceed the interaction deadline.
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	ack, err := sc.orch.Play(ctx, playback.Request{
		GuildID:   i.GuildID,
		ChannelID: channelID,
		UserID:    userID,
		Argument:  arg,
	})
	if err != nil {
		logFailure("play", i, err)
		discord.FollowUp(s, i, playback.Reply(err))
		return
	}
	discord.FollowUp(s, i, ack.Message())
}

// handleAutocomplete answers /play autocomplete.
func (sc *SoundCommands) handleAutocomplete(s discord.Responder, i *discordgo.InteractionCreate) {
	query := focusedString(i.ApplicationCommandData().Options)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	names, err := sc.orch.Autocomplete(ctx, query)
	if err != nil {
		slog.Warn("commands: autocomplete failed", "query", query, "err", err)
	}
	discord.RespondAutocomplete(s, i, names)
}

// handleList handles /list.
func (sc *SoundCommands) handleList(s discord.Responder, i *discordgo.InteractionCreate) {
	if !sc.gate(s, i, false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	names, err := sc.orch.ListSounds(ctx)
	if err != nil {
		logFailure("list", i, err)
		discord.RespondEphemeral(s, i, playback.Reply(err))
		return
	}

	chunks := discord.Chunk(ListLines(names), discord.MaxMessageLength)
	discord.Respond(s, i, chunks[0])
	for _, c := range chunks[1:] {
		discord.FollowUp(s, i, c)
	}
}

// ListLines renders the /list reply, one line per entry.
func ListLines(names []string) []string {
	lines := make([]string, 0, len(names)+2)
	lines = append(lines, "Type `/play [sound name]` to play a sound.", "Available sounds:")
	for _, n := range names {
		lines = append(lines, "\t- "+n)
	}
	return lines
}

// handleStop handles /stop.
func (sc *SoundCommands) handleStop(s discord.Responder, i *discordgo.InteractionCreate) {
	if !sc.gate(s, i, true) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	ack, err := sc.orch.Stop(ctx, i.GuildID)
	if err != nil {
		logFailure("stop", i, err)
		discord.RespondEphemeral(s, i, playback.Reply(err))
		return
	}
	discord.Respond(s, i, ack.Message())
}

// handleTop handles /top.
func (sc *SoundCommands) handleTop(s discord.Responder, i *discordgo.InteractionCreate) {
	if !sc.gate(s, i, false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	top, err := sc.orch.Top(ctx, i.GuildID, topCount)
	if err != nil {
		logFailure("top", i, err)
		discord.RespondEphemeral(s, i, playback.Reply(err))
		return
	}
	if len(top) == 0 {
		discord.Respond(s, i, "Nothing has been played yet.")
		return
	}
	var b strings.Builder
	b.WriteString("Most played sounds:")
	for n, c := range top {
		fmt.Fprintf(&b, "\n%d. **%s** (%d)", n+1, c.Sound, c.Plays)
	}
	discord.Respond(s, i, b.String())
}

// logFailure logs err at warn level for conditions users cause and at error
// level for everything else.
func logFailure(cmd string, i *discordgo.InteractionCreate, err error) {
	level := slog.LevelError
	if playback.Expected(err) {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "commands: "+cmd+" failed",
		"guild_id", i.GuildID, "user_id", discord.InteractionUserID(i), "err", err)
}

func optionString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}

func focusedString(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	for _, o := range opts {
		if o.Focused && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}
