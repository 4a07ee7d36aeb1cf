package dialogue

import session "github.com/zhouzirui/einstein-live/backend/internal/model/session"

// systemPrompt pins the fixed science-educator persona. It constrains tone,
// brevity (replies must stay under roughly one short spoken paragraph so the
// avatar latency stays low) and the bilingual behavior.
const systemPrompt = `You are AI Einstein, a friendly science buddy for kids! Your job is to make science super fun and easy to understand.
Use simple words. Give short, exciting answers. Be enthusiastic.
Keep every answer to one short paragraph, suitable to be spoken aloud in under a minute.
Respond in Korean if the user speaks Korean.`

// openingLine seeds the assistant side of a fresh context.
const openingLine = "Greetings! I'm Einstein, your scientific guide."

const (
	apologyEnglish = "Sorry, I didn't catch that. Could you repeat your question?"
	apologyKorean  = "죄송해요, 잘 못 들었어요. 다시 한 번 질문해 주시겠어요?"

	greetingEnglish = "Hello! I'm Einstein. Ask me anything about science!"
	greetingKorean  = "안녕하세요! 저는 아인슈타인입니다. 과학에 대해 무엇이든 물어보세요!"
)

// Apology is the canned utterance used when the dialogue provider fails.
func Apology(lang session.Language) string {
	if lang == session.Korean {
		return apologyKorean
	}
	return apologyEnglish
}

// Greeting is the localized line pushed to the avatar right after a session
// starts.
func Greeting(lang session.Language) string {
	if lang == session.Korean {
		return greetingKorean
	}
	return greetingEnglish
}
