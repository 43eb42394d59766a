package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// MaxMessageLength is the Discord limit for message content.
const MaxMessageLength = 2000

// MaxAutocompleteChoices is the Discord limit for autocomplete results.
const MaxAutocompleteChoices = 25

// maxChoiceLength is the Discord limit for a choice name and value.
const maxChoiceLength = 100

// Responder is the subset of [*discordgo.Session] used to answer
// interactions. [mock.InteractionResponder] implements it for tests.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Respond sends a visible text response to an interaction.
func Respond(s Responder, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		slog.Warn("discord: failed to send response", "err", err)
	}
}

// RespondEphemeral sends an ephemeral text response to an interaction.
func RespondEphemeral(s Responder, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("discord: failed to send ephemeral response", "err", err)
	}
}

// RespondAutocomplete answers an autocomplete interaction with names as
// both choice label and value. Names Discord would reject are skipped and
// the result is capped at [MaxAutocompleteChoices].
func RespondAutocomplete(s Responder, i *discordgo.InteractionCreate, names []string) {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, min(len(names), MaxAutocompleteChoices))
	for _, name := range names {
		if len(choices) == MaxAutocompleteChoices {
			break
		}
		if name == "" || len(name) > maxChoiceLength {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Warn("discord: failed to send autocomplete choices", "err", err)
	}
}

// DeferReply sends a deferred visible response (for long-running commands).
func DeferReply(s Responder, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.Warn("discord: failed to defer reply", "err", err)
	}
}

// FollowUp sends a follow-up message after a deferred or initial response.
func FollowUp(s Responder, i *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
	})
	if err != nil {
		slog.Warn("discord: failed to send follow-up", "err", err)
	}
}

// Chunk splits lines into messages no longer than limit bytes. Lines are
// never split; a single line longer than limit is cut at the limit.
func Chunk(lines []string, limit int) []string {
	var (
		out []string
		cur []byte
	)
	for _, line := range lines {
		if len(line) > limit {
			line = line[:limit]
		}
		if len(cur) > 0 && len(cur)+1+len(line) > limit {
			out = append(out, string(cur))
			cur = cur[:0]
		}
		if len(cur) > 0 {
			cur = append(cur, '\n')
		}
		cur = append(cur, line...)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}
