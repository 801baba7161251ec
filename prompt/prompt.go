// Package prompt collects the run's inputs interactively when they were not
// supplied by flags or the environment.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/onnwee/discord-archiver/archive"
)

// ServerSentinel, entered as the conversation, switches to server mode.
const ServerSentinel = "none"

// ErrInputRequired is returned when a required answer is empty.
var ErrInputRequired = errors.New("input required")

// InputError names the field that was left empty.
type InputError struct {
	Field string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *InputError) Unwrap() error { return ErrInputRequired }

// Answers holds the inputs of a run. Conversation set selects shape A;
// otherwise Server and Channel select a guild target.
type Answers struct {
	Token        string
	Conversation string
	Server       string
	Channel      string
}

// Target converts the answers into an archive target.
func (a Answers) Target() archive.Target {
	if a.Conversation != "" {
		return archive.Target{ConversationID: a.Conversation}
	}
	return archive.Target{GuildID: a.Server, ChannelID: a.Channel}
}

// Prompter asks questions on out and reads answers line by line from in.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// New creates a Prompter.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask writes question and returns the trimmed answer.
func (p *Prompter) Ask(question string) (string, error) {
	if _, err := io.WriteString(p.out, question); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Complete prompts for every missing answer in order: token, conversation,
// server, channel. Answers already present are not asked for.
func (p *Prompter) Complete(a Answers) (Answers, error) {
	serverMode := strings.EqualFold(strings.TrimSpace(a.Conversation), ServerSentinel)
	a = normalize(a)
	var err error
	if a.Token == "" {
		if a.Token, err = p.required("token", "Enter your Discord token: "); err != nil {
			return a, err
		}
	}
	if a.Conversation != "" {
		return a, nil
	}
	if !serverMode && a.Server == "" {
		answer, err := p.required("conversation", `Enter Group/DM ID (or type "none" to log a server instead): `)
		if err != nil {
			return a, err
		}
		if !strings.EqualFold(answer, ServerSentinel) {
			a.Conversation = answer
			return a, nil
		}
	}
	if a.Server == "" {
		if a.Server, err = p.required("server", "Enter Server ID: "); err != nil {
			return a, err
		}
	}
	if a.Channel == "" {
		if a.Channel, err = p.required("channel", `Enter Channel ID (or type "every" to log all channels): `); err != nil {
			return a, err
		}
	}
	return a, nil
}

func (p *Prompter) required(field, question string) (string, error) {
	answer, err := p.Ask(question)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", &InputError{Field: field}
	}
	return answer, nil
}

func normalize(a Answers) Answers {
	a.Token = strings.TrimSpace(a.Token)
	a.Conversation = strings.TrimSpace(a.Conversation)
	a.Server = strings.TrimSpace(a.Server)
	a.Channel = strings.TrimSpace(a.Channel)
	if strings.EqualFold(a.Conversation, ServerSentinel) {
		a.Conversation = ""
	}
	return a
}
