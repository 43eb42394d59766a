package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pascal/internal/intro"
)

// TransitionFromUpdate translates a gateway voice state update into an
// intro transition. It reports false for updates from bot accounts and for
// updates without a user.
func TransitionFromUpdate(vsu *discordgo.VoiceStateUpdate) (intro.Transition, bool) {
	if vsu == nil || vsu.VoiceState == nil || vsu.UserID == "" {
		return intro.Transition{}, false
	}
	if vsu.Member != nil && vsu.Member.User != nil && vsu.Member.User.Bot {
		return intro.Transition{}, false
	}
	tr := intro.Transition{
		GuildID:      vsu.GuildID,
		UserID:       vsu.UserID,
		NewChannelID: vsu.ChannelID,
	}
	if vsu.BeforeUpdate != nil {
		tr.PreviousChannelID = vsu.BeforeUpdate.ChannelID
	}
	return tr, true
}
