package narrative

import (
	"fmt"
	"strings"

	"taleweaver/internal/domain"
	"taleweaver/internal/pipeline"
)

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"ta": "Tamil",
}

var languageInstructions = map[string]map[domain.StoryInputType]string{
	"en": {
		domain.InputTypeScenario:   "Use vivid imagery and engaging dialogue. Include cultural references appropriate for English speakers.",
		domain.InputTypeImage:      "Use the image as inspiration but expand creatively beyond what's visible.",
		domain.InputTypeCharacters: "Give each character a distinct voice and let their traits drive the plot.",
	},
	"hi": {
		domain.InputTypeScenario:   "हिंदी में प्राकृतिक और सुंदर भाषा का प्रयोग करें। भारतीय संस्कृति के तत्वों को शामिल करें।",
		domain.InputTypeImage:      "चित्र से प्रेरणा लें लेकिन दिखाई देने वाली चीजों से आगे बढ़कर रचनात्मक कहानी बनाएं।",
		domain.InputTypeCharacters: "हर पात्र को अलग आवाज़ दें और उनके गुणों से कहानी आगे बढ़ाएं।",
	},
	"ta": {
		domain.InputTypeScenario:   "தமிழில் இயற்கையான மற்றும் அழகான மொழியைப் பயன்படுத்துங்கள். தமிழ் கலாச்சார கூறுகளை உள்ளடக்குங்கள்.",
		domain.InputTypeImage:      "படத்திலிருந்து உத்வேகம் பெறுங்கள் ஆனால் காணக்கூடியவற்றைத் தாண்டி ஆக்கபூர்வமாக விரிவுபடுத்துங்கள்.",
		domain.InputTypeCharacters: "ஒவ்வொரு பாத்திரத்திற்கும் தனித்துவமான குரல் கொடுங்கள்.",
	},
}

const storyJSONShape = `{
  "title": "Story title in %s",
  "scenes": [
    {
      "id": 1,
      "title": "Scene title",
      "narration": "Descriptive narrative text",
      "dialogue": [
        {
          "character": "Character name",
          "line": "What the character says",
          "emotion": "neutral/cheerful/excited/sad/angry/calm"
        }
      ]
    }
  ]
}`

// BuildPrompts renders the system and user prompts for a narrative request.
func BuildPrompts(req pipeline.NarrativeRequest) (system, user string) {
	langName, ok := languageNames[req.Language]
	if !ok {
		langName = "English"
	}
	instruction := languageInstructions["en"][req.InputType]
	if byType, ok := languageInstructions[req.Language]; ok {
		if s, ok := byType[req.InputType]; ok {
			instruction = s
		}
	}

	var sb strings.Builder
	switch req.InputType {
	case domain.InputTypeImage:
		fmt.Fprintf(&sb, "You are a master storyteller who creates %s stories inspired by images.\n\n", langName)
	default:
		fmt.Fprintf(&sb, "You are a master storyteller specializing in %s stories for %s.\n\n", langName, req.TargetAudience)
		fmt.Fprintf(&sb, "Create engaging, %s stories that captivate your audience. ", req.Tone)
	}
	sb.WriteString(instruction)
	sb.WriteString("\n\nIMPORTANT: Output ONLY valid JSON in this exact structure:\n")
	fmt.Fprintf(&sb, storyJSONShape, langName)
	sb.WriteString("\n\nGuidelines:\n")
	sb.WriteString("- Create 3-5 scenes for a complete story arc\n")
	fmt.Fprintf(&sb, "- Keep total length around %d words\n", req.Length)
	sb.WriteString("- Include vivid descriptions and engaging dialogue\n")
	sb.WriteString("- Each character should have distinct personality in their speech\n")
	fmt.Fprintf(&sb, "- Use appropriate cultural context for %s\n", langName)
	fmt.Fprintf(&sb, "- Ensure the tone is consistently %s\n", req.Tone)
	fmt.Fprintf(&sb, "- Make it age-appropriate for %s", req.TargetAudience)
	system = sb.String()

	switch req.InputType {
	case domain.InputTypeScenario:
		user = fmt.Sprintf("Create a %s story in %s for %s based on this scenario: %s",
			req.Tone, langName, req.TargetAudience, req.Scenario)
	case domain.InputTypeImage:
		context := fmt.Sprintf("Image analysis: %s", req.ImageContext)
		if req.UserDescription != "" {
			context += fmt.Sprintf("\nUser's interpretation: %s", req.UserDescription)
		}
		user = fmt.Sprintf("Create a %s story in %s for %s inspired by this image.\n%s",
			req.Tone, langName, req.TargetAudience, context)
	case domain.InputTypeCharacters:
		var roster strings.Builder
		for _, c := range req.Characters {
			fmt.Fprintf(&roster, "- %s", c.Name)
			if c.Traits != "" {
				fmt.Fprintf(&roster, " (%s)", c.Traits)
			}
			roster.WriteString("\n")
		}
		user = fmt.Sprintf("Create a %s story in %s for %s featuring these characters:\n%s",
			req.Tone, langName, req.TargetAudience, roster.String())
		if req.Setting != "" {
			user += fmt.Sprintf("Setting: %s\n", req.Setting)
		}
		if req.Conflict != "" {
			user += fmt.Sprintf("Central conflict: %s", req.Conflict)
		}
	}
	return system, user
}
