package directory

// builtinAIDomains is the shipped directory of hosted AI surfaces.
// Entries are apex or service domains; matching is suffix-aware, so
// "openai.com" also covers "chat.openai.com". Administrators extend
// the set through the policy document's custom list.
var builtinAIDomains = []string{
	"openai.com",
	"chatgpt.com",
	"claude.ai",
	"anthropic.com",
	"gemini.google.com",
	"bard.google.com",
	"aistudio.google.com",
	"copilot.microsoft.com",
	"bing.com",
	"perplexity.ai",
	"poe.com",
	"character.ai",
	"huggingface.co",
	"replicate.com",
	"midjourney.com",
	"mistral.ai",
	"deepseek.com",
	"groq.com",
	"you.com",
	"phind.com",
	"meta.ai",
	"grok.com",
	"x.ai",
	"pi.ai",
	"cohere.com",
	"jasper.ai",
	"copy.ai",
	"writesonic.com",
	"notion.so",
	"gamma.app",
}
