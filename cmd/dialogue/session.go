package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zhouzirui/other-side/backend/internal/client/conversation"
)

const (
	cmdEnd   = "/end"
	cmdReset = "/reset"
	cmdQuit  = "/quit"
)

// session drives a Conversation from line-oriented input.
type session struct {
	conv   *conversation.Conversation
	in     *bufio.Scanner
	out    io.Writer
	topics []string

	// used once, for the first topic selection
	presetTopic  string
	presetStance string
}

func newSession(conv *conversation.Conversation, in io.Reader, out io.Writer, topics []string) *session {
	return &session{
		conv:   conv,
		in:     bufio.NewScanner(in),
		out:    out,
		topics: topics,
	}
}

// run loops until /quit, end of input or ctx cancellation.
func (s *session) run(ctx context.Context) error {
	for ctx.Err() == nil {
		switch s.conv.Phase() {
		case conversation.PhaseSelect:
			topic, stance, ok := s.chooseTopic()
			if !ok {
				return nil
			}
			s.start(ctx, topic, stance)

		case conversation.PhaseChat:
			line, ok := s.readLine("you> ")
			if !ok {
				return nil
			}
			switch line {
			case "":
			case cmdQuit:
				return nil
			case cmdReset:
				s.conv.Reset()
			case cmdEnd:
				fmt.Fprintln(s.out, mutedStyle.Render("Thinking about what you talked about..."))
				fmt.Fprintln(s.out, renderReflection(s.conv.EndConversation(ctx)))
				fmt.Fprintln(s.out, mutedStyle.Render("Type /reset to start over or /quit to leave."))
			default:
				s.send(ctx, line)
			}

		case conversation.PhaseEnd:
			line, ok := s.readLine("> ")
			if !ok || line == cmdQuit {
				return nil
			}
			if line == cmdReset {
				s.conv.Reset()
			}
		}
	}
	return ctx.Err()
}

func (s *session) start(ctx context.Context, topic, stance string) {
	fmt.Fprintln(s.out, mutedStyle.Render("Finding someone who sees it differently..."))
	if err := s.conv.StartConversation(ctx, topic, stance); err != nil {
		if msg := s.conv.InlineError(); msg != "" {
			fmt.Fprintln(s.out, renderError(msg))
			s.conv.DismissError()
		} else {
			fmt.Fprintln(s.out, renderError(err.Error()))
		}
		return
	}

	p := s.conv.Persona()
	fmt.Fprintln(s.out, renderPersonaCard(*p, s.conv.Topic()))
	for _, m := range s.conv.Messages() {
		fmt.Fprintln(s.out, renderMessage(m, p.Name))
	}
}

func (s *session) send(ctx context.Context, text string) {
	if err := s.conv.SendMessage(ctx, text); err != nil {
		msg := s.conv.InlineError()
		if msg == "" {
			msg = err.Error()
		}
		fmt.Fprintln(s.out, renderError(msg+" (your message is kept, send again to retry)"))
		s.conv.DismissError()
		return
	}

	msgs := s.conv.Messages()
	fmt.Fprintln(s.out, renderMessage(msgs[len(msgs)-1], s.conv.Persona().Name))
}

// chooseTopic returns the topic and optional stance. A number picks a curated
// topic, anything else is taken as a custom topic.
func (s *session) chooseTopic() (string, string, bool) {
	if s.presetTopic != "" {
		topic, stance := s.presetTopic, s.presetStance
		s.presetTopic, s.presetStance = "", ""
		return topic, stance, true
	}

	fmt.Fprintln(s.out, renderTopics(s.topics))
	var topic string
	for topic == "" {
		line, ok := s.readLine("topic (number or your own)> ")
		if !ok || line == cmdQuit {
			return "", "", false
		}
		topic = s.resolveTopic(line)
	}

	stance, ok := s.readLine("your view (optional)> ")
	if !ok {
		return "", "", false
	}
	return topic, stance, true
}

func (s *session) resolveTopic(line string) string {
	n, err := strconv.Atoi(line)
	if err != nil {
		return line
	}
	if n < 1 || n > len(s.topics) {
		fmt.Fprintln(s.out, renderError(fmt.Sprintf("pick a number between 1 and %d", len(s.topics))))
		return ""
	}
	return s.topics[n-1]
}

func (s *session) readLine(prompt string) (string, bool) {
	fmt.Fprint(s.out, prompt)
	if !s.in.Scan() {
		fmt.Fprintln(s.out)
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}
