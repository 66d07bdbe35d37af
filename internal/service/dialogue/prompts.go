package dialogue

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/other-side/backend/internal/model/chat"
	"github.com/zhouzirui/other-side/backend/internal/model/persona"
)

const personaPromptTemplate = `You are helping build a constructive dialogue practice tool. Generate a realistic conversation partner for the topic: "%s".

%s

This person should:
- Hold their view because of genuine life experience, values, and community context, NOT just policy talking points
- Be thoughtful and intellectually honest, not a strawman
- Have specific, believable background details

Return ONLY valid JSON (no markdown, no explanation) in this exact format:
{
  "name": "First Last",
  "age": 35,
  "occupation": "specific job title",
  "location": "City, State",
  "stance": "one sentence describing their position on the topic",
  "oneLineSummary": "one vivid sentence about who they are and why they hold their view",
  "coreBeliefs": ["belief rooted in values/experience", "another core belief", "a third belief"]
}

Make the person feel real. Avoid stereotypes. Give them texture.`

const chatRules = `RULES FOR THIS CONVERSATION:
- You are having a genuine conversation, not a debate. You are not trying to win.
- Respond in 2-4 sentences. Be direct but human. Sound like a real person talking.
- Acknowledge when the other person makes a strong point and say so honestly.
- Ask a genuine question back roughly every other turn. Be curious about them.
- Do NOT recite statistics or cite sources unless specifically asked. Talk from personal experience and observation.
- Do NOT strawman the other person's view. Engage with what they actually said.
- If they make a point you genuinely can't counter, admit it, but explain why you still hold your overall view.
- You may soften or nuance your position slightly over a long conversation if genuinely persuaded on a specific point. But do not flip entirely; real people rarely change their minds in one conversation.
- Stay in character. You are %s from %s, not an AI assistant.
- Do not mention that you are an AI, a language model, or anything similar.`

const reflectionPromptTemplate = `You facilitated a dialogue practice session. The topic was "%s". Here's what was said:

%s

Generate 3 brief, genuine reflection questions for the person who just practiced this conversation. These should help them notice something about their own thinking or how they engaged. Make them specific to what actually happened in this conversation, not generic. Keep each question to one sentence.

Return ONLY a JSON array of 3 strings, no markdown:
["question 1", "question 2", "question 3"]`

// BuildPersonaPrompt asks the model for a persona holding a differing view on topic.
func BuildPersonaPrompt(topic, userStance string) string {
	stanceContext := "Generate someone with a thoughtful, well-grounded perspective on this topic."
	if userStance != "" {
		stanceContext = fmt.Sprintf(`The user believes: "%s". Generate someone who genuinely holds a different view.`, userStance)
	}
	return fmt.Sprintf(personaPromptTemplate, topic, stanceContext)
}

// BuildChatSystemPrompt puts the model in character as p.
func BuildChatSystemPrompt(p persona.Persona, topic, userStance string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "You are %s, %d years old, working as a %s in %s.\n\n", p.Name, p.Age, p.Occupation, p.Location)
	fmt.Fprintf(&builder, "Your position on \"%s\": %s\n\n", topic, p.Stance)
	builder.WriteString("Why you hold this view (your core beliefs and experiences):\n")
	for i, belief := range p.CoreBeliefs {
		fmt.Fprintf(&builder, "%d. %s\n", i+1, belief)
	}
	builder.WriteString("\n")
	if userStance != "" {
		fmt.Fprintf(&builder, "The person you're talking with believes: \"%s\"\n\n", userStance)
	}
	fmt.Fprintf(&builder, chatRules, p.Name, p.Location)
	return builder.String()
}

// BuildReflectionPrompt renders the transcript and asks for three questions.
func BuildReflectionPrompt(p persona.Persona, messages []chat.Message, topic string) string {
	return fmt.Sprintf(reflectionPromptTemplate, topic, formatTranscript(p, messages))
}

func formatTranscript(p persona.Persona, messages []chat.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		speaker := p.Name
		if msg.Role == chat.RoleUser {
			speaker = "You"
		}
		lines = append(lines, speaker+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}
