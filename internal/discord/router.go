package discord

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/bwmarrin/discordgo"
)

// DefaultPrefix starts a text command when no prefix is configured.
const DefaultPrefix = "!"

// HandlerFunc is the signature for slash command handlers.
type HandlerFunc func(r Replier, i *discordgo.InteractionCreate)

// AutocompleteFunc is the signature for autocomplete handlers.
type AutocompleteFunc func(r Replier, i *discordgo.InteractionCreate)

// MessageFunc handles a prefix command. args is the message text after the
// command name, trimmed.
type MessageFunc func(r Replier, m *discordgo.MessageCreate, args string)

// commandEntry stores a command definition along with its handler.
type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches slash command interactions and prefix messages to
// registered handlers.
type CommandRouter struct {
	mu           sync.RWMutex
	prefix       string
	commands     map[string]commandEntry     // slash command name → entry
	autocomplete map[string]AutocompleteFunc // slash command name → handler
	messages     map[string]MessageFunc      // lower-case prefix command name → handler
}

// NewCommandRouter creates an empty router. An empty prefix selects
// [DefaultPrefix].
func NewCommandRouter(prefix string) *CommandRouter {
	r := &CommandRouter{
		commands:     make(map[string]commandEntry),
		autocomplete: make(map[string]AutocompleteFunc),
		messages:     make(map[string]MessageFunc),
	}
	r.SetPrefix(prefix)
	return r
}

// SetPrefix changes the text command prefix. Safe to call while handling.
func (r *CommandRouter) SetPrefix(prefix string) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefix = prefix
}

// Prefix returns the current text command prefix.
func (r *CommandRouter) Prefix() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefix
}

// RegisterCommand registers a slash command definition and its handler.
func (r *CommandRouter) RegisterCommand(cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name] = commandEntry{command: cmd, handler: handler}
}

// RegisterAutocomplete registers an autocomplete handler for a slash command.
func (r *CommandRouter) RegisterAutocomplete(name string, handler AutocompleteFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autocomplete[name] = handler
}

// RegisterMessage registers a prefix command under one or more names.
func (r *CommandRouter) RegisterMessage(handler MessageFunc, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.messages[strings.ToLower(n)] = handler
	}
}

// ApplicationCommands returns the slash command definitions for
// registration with the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, entry := range r.commands {
		cmds = append(cmds, entry.command)
	}
	return cmds
}

// Handle dispatches an interaction to the appropriate handler.
func (r *CommandRouter) Handle(rep Replier, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		r.handleApplicationCommand(rep, i)

	case discordgo.InteractionApplicationCommandAutocomplete:
		r.handleAutocomplete(rep, i)

	default:
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
	}
}

// HandleMessage dispatches a prefix command. Messages from bots, messages
// outside guilds and messages without the prefix are ignored. It reports
// whether a handler ran.
func (r *CommandRouter) HandleMessage(rep Replier, m *discordgo.MessageCreate) bool {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return false
	}

	prefix := r.Prefix()
	body, ok := strings.CutPrefix(strings.TrimSpace(m.Content), prefix)
	if !ok {
		return false
	}
	name, args := body, ""
	if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
		name, args = body[:i], body[i:]
	}
	name = strings.ToLower(name)
	if name == "" {
		return false
	}

	r.mu.RLock()
	handler, ok := r.messages[name]
	r.mu.RUnlock()
	if !ok {
		slog.Debug("discord: unknown prefix command", "command", name)
		return false
	}
	handler(rep, m, strings.TrimSpace(args))
	return true
}

func (r *CommandRouter) handleApplicationCommand(rep Replier, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name

	r.mu.RLock()
	entry, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("discord: unknown command", "command", name)
		RespondEphemeral(rep, i, "Unknown command.")
		return
	}
	entry.handler(rep, i)
}

func (r *CommandRouter) handleAutocomplete(rep Replier, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name

	r.mu.RLock()
	handler, ok := r.autocomplete[name]
	r.mu.RUnlock()

	if !ok {
		slog.Debug("discord: no autocomplete handler", "command", name)
		RespondChoices(rep, i, nil)
		return
	}
	handler(rep, i)
}
