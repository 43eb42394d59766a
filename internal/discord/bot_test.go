package discord

import (
	"slices"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pascal/internal/discord/mock"
	"github.com/MrWong99/pascal/internal/intro"
)

func member(userID string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: userID}, Roles: roles}
}

func commandInteraction(typ discordgo.InteractionType, name string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:    typ,
			GuildID: "g1",
			Member:  member("u1"),
			Data:    discordgo.ApplicationCommandInteractionData{Name: name},
		},
	}
}

// ── PermissionChecker ────────────────────────────────────────────────────────

func TestPermissionChecker_IsController(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		roleID string
		inter  *discordgo.InteractionCreate
		want   bool
	}{
		{
			name:   "user with controller role",
			roleID: "role-123",
			inter:  &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: member("u", "role-456", "role-123")}},
			want:   true,
		},
		{
			name:   "user without controller role",
			roleID: "role-123",
			inter:  &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: member("u", "role-456")}},
			want:   false,
		},
		{
			name:   "empty role allows all",
			roleID: "",
			inter:  &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: member("u")}},
			want:   true,
		},
		{
			name:   "nil Member returns false",
			roleID: "role-123",
			inter:  &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pc := NewPermissionChecker(tt.roleID, nil)
			if got := pc.IsController(tt.inter); got != tt.want {
				t.Errorf("IsController() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermissionChecker_AllowedChannel(t *testing.T) {
	t.Parallel()

	in := func(ch string) *discordgo.InteractionCreate {
		return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{ChannelID: ch}}
	}

	open := NewPermissionChecker("", nil)
	if !open.AllowedChannel(in("anything")) {
		t.Error("empty allow-list rejected a channel")
	}

	gated := NewPermissionChecker("", []string{"pascal-phone"})
	if !gated.AllowedChannel(in("pascal-phone")) {
		t.Error("allowed channel rejected")
	}
	if gated.AllowedChannel(in("general")) {
		t.Error("channel outside the allow-list accepted")
	}
}

// ── CommandRouter ────────────────────────────────────────────────────────────

func TestCommandRouter_ApplicationCommands_Dedup(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	noop := func(Responder, *discordgo.InteractionCreate) {}
	cmd := &discordgo.ApplicationCommand{Name: "sound"}
	r.RegisterCommand("sound/play", cmd, noop)
	r.RegisterCommand("sound/stop", cmd, noop)
	r.RegisterHandler("sound/list", noop)

	cmds := r.ApplicationCommands()
	if len(cmds) != 1 || cmds[0].Name != "sound" {
		t.Fatalf("ApplicationCommands = %v, want one deduplicated command", cmds)
	}
}

func TestCommandRouter_Dispatch(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var called []string
	r.RegisterCommand("play", &discordgo.ApplicationCommand{Name: "play"}, func(Responder, *discordgo.InteractionCreate) {
		called = append(called, "command")
	})
	r.RegisterAutocomplete("play", func(Responder, *discordgo.InteractionCreate) {
		called = append(called, "autocomplete")
	})

	resp := &mock.InteractionResponder{}
	r.Handle(resp, commandInteraction(discordgo.InteractionApplicationCommand, "play"))
	r.Handle(resp, commandInteraction(discordgo.InteractionApplicationCommandAutocomplete, "play"))

	if !slices.Equal(called, []string{"command", "autocomplete"}) {
		t.Errorf("called = %v", called)
	}
	if len(resp.Responses) != 0 {
		t.Errorf("router responded itself: %d responses", len(resp.Responses))
	}
}

func TestCommandRouter_UnknownCommand(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	resp := &mock.InteractionResponder{}
	r.Handle(resp, commandInteraction(discordgo.InteractionApplicationCommand, "nope"))

	last := resp.LastResponse()
	if last == nil || last.Data.Content != "Unknown command." {
		t.Fatalf("response = %+v, want Unknown command.", last)
	}
	if last.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("unknown command reply is not ephemeral")
	}
}

func TestCommandRouter_MissingAutocompleteAnswersEmpty(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	resp := &mock.InteractionResponder{}
	r.Handle(resp, commandInteraction(discordgo.InteractionApplicationCommandAutocomplete, "play"))

	last := resp.LastResponse()
	if last == nil || last.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Fatalf("response = %+v, want autocomplete result", last)
	}
	if len(last.Data.Choices) != 0 {
		t.Errorf("choices = %d, want 0", len(last.Data.Choices))
	}
}

func TestInteractionUserID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		inter *discordgo.Interaction
		want  string
	}{
		{"guild member", &discordgo.Interaction{Member: member("member-123")}, "member-123"},
		{"direct message", &discordgo.Interaction{User: &discordgo.User{ID: "dm-456"}}, "dm-456"},
		{"no user", &discordgo.Interaction{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := InteractionUserID(&discordgo.InteractionCreate{Interaction: tt.inter}); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// ── Responders ───────────────────────────────────────────────────────────────

func TestRespondAutocomplete_CapsAndSkipsInvalid(t *testing.T) {
	t.Parallel()

	names := []string{"", strings.Repeat("x", 101)}
	for i := range 30 {
		names = append(names, strings.Repeat("a", i+1))
	}

	resp := &mock.InteractionResponder{}
	RespondAutocomplete(resp, commandInteraction(discordgo.InteractionApplicationCommandAutocomplete, "play"), names)

	choices := resp.LastResponse().Data.Choices
	if len(choices) != MaxAutocompleteChoices {
		t.Fatalf("choices = %d, want %d", len(choices), MaxAutocompleteChoices)
	}
	if choices[0].Name != "a" || choices[0].Value != "a" {
		t.Errorf("first choice = %+v, want a", choices[0])
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []string
		limit int
		want  []string
	}{
		{"empty", nil, 10, nil},
		{"fits", []string{"ab", "cd"}, 10, []string{"ab\ncd"}},
		{"exact fit", []string{"abcd", "efgh"}, 9, []string{"abcd\nefgh"}},
		{"splits between lines", []string{"abcd", "efgh", "ij"}, 8, []string{"abcd", "efgh\nij"}},
		{"overlong line is cut", []string{"abcdefghij"}, 4, []string{"abcd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Chunk(tt.lines, tt.limit)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Chunk = %q, want %q", got, tt.want)
			}
			for _, c := range got {
				if len(c) > tt.limit {
					t.Errorf("chunk %q exceeds %d", c, tt.limit)
				}
			}
		})
	}
}

// ── Voice state ──────────────────────────────────────────────────────────────

func TestTransitionFromUpdate(t *testing.T) {
	t.Parallel()

	human := &discordgo.Member{User: &discordgo.User{ID: "42"}}
	bot := &discordgo.Member{User: &discordgo.User{ID: "99", Bot: true}}

	tests := []struct {
		name   string
		vsu    *discordgo.VoiceStateUpdate
		want   intro.Transition
		wantOK bool
	}{
		{
			name:   "join",
			vsu:    &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g", UserID: "42", ChannelID: "7", Member: human}},
			want:   intro.Transition{GuildID: "g", UserID: "42", NewChannelID: "7"},
			wantOK: true,
		},
		{
			name: "move",
			vsu: &discordgo.VoiceStateUpdate{
				VoiceState:   &discordgo.VoiceState{GuildID: "g", UserID: "42", ChannelID: "8", Member: human},
				BeforeUpdate: &discordgo.VoiceState{GuildID: "g", UserID: "42", ChannelID: "7"},
			},
			want:   intro.Transition{GuildID: "g", UserID: "42", PreviousChannelID: "7", NewChannelID: "8"},
			wantOK: true,
		},
		{
			name: "leave",
			vsu: &discordgo.VoiceStateUpdate{
				VoiceState:   &discordgo.VoiceState{GuildID: "g", UserID: "42"},
				BeforeUpdate: &discordgo.VoiceState{ChannelID: "7"},
			},
			want:   intro.Transition{GuildID: "g", UserID: "42", PreviousChannelID: "7"},
			wantOK: true,
		},
		{
			name: "bot account",
			vsu:  &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g", UserID: "99", ChannelID: "7", Member: bot}},
		},
		{
			name: "no voice state",
			vsu:  &discordgo.VoiceStateUpdate{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := TransitionFromUpdate(tt.vsu)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("transition = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBot_ForwardsTransitions(t *testing.T) {
	t.Parallel()

	b := &Bot{}
	var got []intro.Transition
	b.OnVoiceTransition(func(tr intro.Transition) { got = append(got, tr) })

	s := &discordgo.Session{State: discordgo.NewState()}
	s.State.User = &discordgo.User{ID: "self"}

	b.handleVoiceStateUpdate(s, &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g", UserID: "42", ChannelID: "7"}})
	b.handleVoiceStateUpdate(s, &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g", UserID: "self", ChannelID: "7"}})

	if len(got) != 1 || got[0].UserID != "42" {
		t.Errorf("forwarded = %+v, want only user 42", got)
	}
}

func TestBot_GuildRemoved(t *testing.T) {
	t.Parallel()

	b := &Bot{}
	var removed []string
	b.OnGuildRemoved(func(id string) { removed = append(removed, id) })

	b.handleGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "outage", Unavailable: true}})
	b.handleGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "kicked"}})

	if !slices.Equal(removed, []string{"kicked"}) {
		t.Errorf("removed = %v, want [kicked]", removed)
	}
}
