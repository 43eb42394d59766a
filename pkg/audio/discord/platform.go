// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It encodes the
// PCM produced by an [audio.Source] to Opus and streams it to the guild's
// voice connection.
//
// The platform requires an active *discordgo.Session (owned by the bot
// layer). Each call to [Platform.Connect] joins a voice channel in the given
// guild and returns a [Connection] that plays one source at a time and can
// queue further sources behind it.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pascal/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// joinFunc matches [discordgo.Session.ChannelVoiceJoin].
type joinFunc func(guildID, channelID string, mute, deaf bool) (*discordgo.VoiceConnection, error)

// Platform implements [audio.Platform] using discordgo voice connections.
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
	join    joinFunc
}

// New creates a new Discord Platform for the given session.
func New(session *discordgo.Session) *Platform {
	return &Platform{
		session: session,
		join:    session.ChannelVoiceJoin,
	}
}

// Connect joins the voice channel identified by channelID in guildID and
// returns an active [audio.Connection]. The supplied ctx governs the
// connection-setup phase only; once the Connection is returned it lives until
// [Connection.Disconnect] is called or Discord drops it.
//
// discordgo's join cannot be cancelled. When ctx ends first, a join that
// completes later is disconnected right away.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	ch := make(chan result, 1)
	go func() {
		// mute=false (we send audio), deaf=true (we never listen).
		vc, err := p.join(guildID, channelID, false, true)
		ch <- result{vc: vc, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, r.err)
		}
		return newConnection(r.vc, p.session, guildID, channelID)
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.vc != nil {
				_ = r.vc.Disconnect()
			}
		}()
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, ctx.Err())
	}
}
