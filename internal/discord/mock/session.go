// Package mock provides test doubles for Discord command testing.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// SentMessage is one message recorded by [Replier.ChannelMessageSend] or
// [Replier.ChannelMessageSendReply].
type SentMessage struct {
	ChannelID string
	Content   string

	// Reference is set for replies.
	Reference *discordgo.MessageReference
}

// Replier records command responses for test assertions. It satisfies
// discord.Replier.
type Replier struct {
	mu sync.Mutex

	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// FollowUps records all FollowupMessageCreate calls.
	FollowUps []*discordgo.WebhookParams

	// Messages records channel messages and replies.
	Messages []SentMessage

	// Err is returned by every method when non-nil, allowing error injection.
	Err error
}

// InteractionRespond records the response and returns the configured error.
func (m *Replier) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// FollowupMessageCreate records the follow-up and returns a stub message.
func (m *Replier) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FollowUps = append(m.FollowUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup"}, nil
}

// ChannelMessageSend records a channel message.
func (m *Replier) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.record(SentMessage{ChannelID: channelID, Content: content})
}

// ChannelMessageSendReply records a reply.
func (m *Replier) ChannelMessageSendReply(channelID, content string, ref *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.record(SentMessage{ChannelID: channelID, Content: content, Reference: ref})
}

func (m *Replier) record(msg SentMessage) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-message", ChannelID: msg.ChannelID, Content: msg.Content}, nil
}

// LastResponse returns the most recently recorded response, or nil.
func (m *Replier) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// LastFollowUp returns the most recently recorded follow-up, or nil.
func (m *Replier) LastFollowUp() *discordgo.WebhookParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.FollowUps) == 0 {
		return nil
	}
	return m.FollowUps[len(m.FollowUps)-1]
}

// LastMessage returns the most recently sent channel message, or the zero
// value.
func (m *Replier) LastMessage() SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return SentMessage{}
	}
	return m.Messages[len(m.Messages)-1]
}

// Reset clears all recorded interactions and errors.
func (m *Replier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = nil
	m.FollowUps = nil
	m.Messages = nil
	m.Err = nil
}
