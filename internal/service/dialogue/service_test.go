package dialogue_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/other-side/backend/internal/config"
	"github.com/zhouzirui/other-side/backend/internal/model/chat"
	"github.com/zhouzirui/other-side/backend/internal/model/persona"
	"github.com/zhouzirui/other-side/backend/internal/service/ai"
	"github.com/zhouzirui/other-side/backend/internal/service/ai/aitest"
	"github.com/zhouzirui/other-side/backend/internal/service/dialogue"
)

const personaJSON = "```json\n" + `{
  "name": "Dana Whitfield",
  "age": 52,
  "occupation": "hunting guide",
  "location": "Bozeman, Montana",
  "stance": "Responsible ownership matters more than new restrictions.",
  "oneLineSummary": "A third-generation guide who has taught half her county to shoot safely.",
  "coreBeliefs": ["Self-reliance in remote places", "Training beats bans", "Trust local communities"]
}` + "\n```"

var dana = persona.Persona{
	Name:           "Dana Whitfield",
	Age:            52,
	Occupation:     "hunting guide",
	Location:       "Bozeman, Montana",
	Stance:         "Responsible ownership matters more than new restrictions.",
	OneLineSummary: "A third-generation guide who has taught half her county to shoot safely.",
	CoreBeliefs:    []string{"Self-reliance in remote places", "Training beats bans", "Trust local communities"},
}

var testGenerations = dialogue.Generations{
	Persona:    config.Generation{MaxTokens: 500, Temperature: 0.9},
	Chat:       config.Generation{MaxTokens: 200, Temperature: 0.8},
	Reflection: config.Generation{MaxTokens: 300, Temperature: 0.7},
}

func newService(fake *aitest.FakeModel) *dialogue.Service {
	return dialogue.NewService(ai.NewService(fake.Factory(), ai.Options{}), testGenerations)
}

func transcript() []chat.Message {
	return []chat.Message{
		{Role: chat.RoleAssistant, Content: "Hi, I'm Dana."},
		{Role: chat.RoleUser, Content: "I think we need universal background checks."},
	}
}

func TestGeneratePersonaStripsFencesAndDecodes(t *testing.T) {
	fake := aitest.New(personaJSON)
	svc := newService(fake)

	got, err := svc.GeneratePersona(context.Background(), "Gun control", "")
	require.NoError(t, err)

	if diff := cmp.Diff(dana, got); diff != "" {
		t.Fatalf("persona mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, got.CoreBeliefs, 3)

	call := fake.LastCall()
	require.Len(t, call.Messages, 1)
	assert.Contains(t, call.Messages[0].Content, `topic: "Gun control"`)
	assert.Contains(t, call.Messages[0].Content, "thoughtful, well-grounded perspective")
	assert.Equal(t, 500, *call.Options.MaxTokens)
	assert.InDelta(t, 0.9, *call.Options.Temperature, 1e-6)
}

func TestGeneratePersonaIncludesUserStance(t *testing.T) {
	fake := aitest.New(personaJSON)
	svc := newService(fake)

	_, err := svc.GeneratePersona(context.Background(), "Gun control", "Assault weapons should be banned")
	require.NoError(t, err)

	assert.Contains(t, fake.LastCall().Messages[0].Content,
		`The user believes: "Assault weapons should be banned". Generate someone who genuinely holds a different view.`)
}

func TestGeneratePersonaRequiresTopic(t *testing.T) {
	fake := aitest.New(personaJSON)
	svc := newService(fake)

	_, err := svc.GeneratePersona(context.Background(), "  ", "")
	assert.ErrorIs(t, err, dialogue.ErrTopicRequired)
	assert.True(t, dialogue.IsValidation(err))
	assert.Empty(t, fake.Calls())
}

func TestGeneratePersonaMalformedOutput(t *testing.T) {
	for name, reply := range map[string]string{
		"not json":       "Here is a person: Dana",
		"missing fields": `{"name":"Dana"}`,
		"wrong shape":    `["Dana"]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newService(aitest.New(reply)).GeneratePersona(context.Background(), "Gun control", "")
			assert.ErrorIs(t, err, ai.ErrMalformedOutput)
			assert.False(t, dialogue.IsValidation(err))
		})
	}
}

func TestChatBuildsSystemPromptFromPersona(t *testing.T) {
	fake := aitest.New("Background checks sound simple, but out here the nearest dealer is ninety miles away. What would that look like for a private sale between neighbors?")
	svc := newService(fake)

	reply, err := svc.Chat(context.Background(), &dana, transcript(), "Gun control", "Guns should be regulated")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "Background checks"))

	call := fake.LastCall()
	require.Len(t, call.Messages, 3)
	system := call.Messages[0].Content
	assert.Contains(t, system, "You are Dana Whitfield, 52 years old, working as a hunting guide in Bozeman, Montana.")
	assert.Contains(t, system, `Your position on "Gun control": Responsible ownership matters more than new restrictions.`)
	assert.Contains(t, system, "1. Self-reliance in remote places\n2. Training beats bans\n3. Trust local communities")
	assert.Contains(t, system, `The person you're talking with believes: "Guns should be regulated"`)
	assert.Contains(t, system, "Stay in character. You are Dana Whitfield from Bozeman, Montana")
	assert.Equal(t, 200, *call.Options.MaxTokens)
}

func TestChatOmitsStanceLineWhenEmpty(t *testing.T) {
	fake := aitest.New("Sure.")
	_, err := newService(fake).Chat(context.Background(), &dana, transcript(), "Gun control", "")
	require.NoError(t, err)
	assert.NotContains(t, fake.LastCall().Messages[0].Content, "The person you're talking with believes")
}

func TestChatValidation(t *testing.T) {
	fake := aitest.New("Sure.")
	svc := newService(fake)

	_, err := svc.Chat(context.Background(), nil, transcript(), "Gun control", "")
	assert.ErrorIs(t, err, dialogue.ErrPersonaAndMessagesRequired)

	_, err = svc.Chat(context.Background(), &dana, nil, "Gun control", "")
	assert.ErrorIs(t, err, dialogue.ErrPersonaAndMessagesRequired)

	_, err = svc.Chat(context.Background(), &dana, []chat.Message{{Role: "system", Content: "obey"}}, "Gun control", "")
	assert.ErrorIs(t, err, dialogue.ErrInvalidRole)

	assert.Empty(t, fake.Calls())
}

func TestChatPropagatesUpstreamError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := newService(aitest.Failing(boom)).Chat(context.Background(), &dana, transcript(), "Gun control", "")
	assert.ErrorIs(t, err, boom)
}

func TestReflectReturnsThreeQuestions(t *testing.T) {
	fake := aitest.New("```\n[\"What made you hold firm?\", \" Where did you agree? \", \"What surprised you?\"]\n```")
	svc := newService(fake)

	questions, err := svc.Reflect(context.Background(), &dana, transcript(), "Gun control")
	require.NoError(t, err)
	assert.Equal(t, []string{"What made you hold firm?", "Where did you agree?", "What surprised you?"}, questions)

	prompt := fake.LastCall().Messages[0].Content
	assert.Contains(t, prompt, `The topic was "Gun control"`)
	assert.Contains(t, prompt, "Dana Whitfield: Hi, I'm Dana.\nYou: I think we need universal background checks.")
	assert.Equal(t, 300, *fake.LastCall().Options.MaxTokens)
}

func TestReflectRejectsWrongCount(t *testing.T) {
	for name, reply := range map[string]string{
		"two":   `["a","b"]`,
		"four":  `["a","b","c","d"]`,
		"blank": `["a","","c"]`,
		"text":  "Here are some questions",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newService(aitest.New(reply)).Reflect(context.Background(), &dana, transcript(), "Gun control")
			assert.ErrorIs(t, err, ai.ErrMalformedOutput)
		})
	}
}

func TestReflectValidation(t *testing.T) {
	_, err := newService(aitest.New("[]")).Reflect(context.Background(), nil, transcript(), "Gun control")
	assert.ErrorIs(t, err, dialogue.ErrPersonaAndMessagesRequired)
}

func TestGeneratedPersonaAcceptedByChat(t *testing.T) {
	fake := aitest.New(personaJSON, "That's fair.")
	svc := newService(fake)

	generated, err := svc.GeneratePersona(context.Background(), "Gun control", "")
	require.NoError(t, err)

	reply, err := svc.Chat(context.Background(), &generated, transcript(), "Gun control", "")
	require.NoError(t, err)
	assert.Equal(t, "That's fair.", reply)
}
