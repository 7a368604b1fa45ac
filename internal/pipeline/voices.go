package pipeline

import (
	"strings"

	"golang.org/x/text/language"
)

// CharacterRole buckets a free-text character name into a voice category.
type CharacterRole string

const (
	RoleChild       CharacterRole = "child"
	RoleElderly     CharacterRole = "elderly"
	RoleAdultMale   CharacterRole = "adult_male"
	RoleAdultFemale CharacterRole = "adult_female"
	RoleNarrator    CharacterRole = "narrator"
)

// Classification is by ordered substring matching over the lower-cased name;
// the first bucket with a hit wins and anything unmatched narrates.
var roleTokens = []struct {
	role   CharacterRole
	tokens []string
}{
	{RoleChild, []string{"child", "kid", "little", "young"}},
	{RoleElderly, []string{"old", "elder", "grand"}},
	{RoleAdultMale, []string{"man", "boy", "father", "dad", "king", "prince"}},
	{RoleAdultFemale, []string{"woman", "girl", "mother", "mom", "queen", "princess"}},
}

// ClassifyCharacter derives the voice role for a speaker name. Deterministic
// and free of backend calls.
func ClassifyCharacter(name string) CharacterRole {
	lower := strings.ToLower(name)
	for _, bucket := range roleTokens {
		for _, token := range bucket.tokens {
			if strings.Contains(lower, token) {
				return bucket.role
			}
		}
	}
	return RoleNarrator
}

const defaultLanguage = "en"

// voiceTable maps supported languages to a concrete neural voice per role.
var voiceTable = map[string]map[CharacterRole]string{
	"en": {
		RoleNarrator:    "en-US-AriaNeural",
		RoleChild:       "en-US-JennyNeural",
		RoleAdultMale:   "en-US-GuyNeural",
		RoleAdultFemale: "en-US-AriaNeural",
		RoleElderly:     "en-US-DavisNeural",
	},
	"hi": {
		RoleNarrator:    "hi-IN-SwaraNeural",
		RoleChild:       "hi-IN-SwaraNeural",
		RoleAdultMale:   "hi-IN-MadhurNeural",
		RoleAdultFemale: "hi-IN-SwaraNeural",
		RoleElderly:     "hi-IN-MadhurNeural",
	},
	"ta": {
		RoleNarrator:    "ta-IN-PallaviNeural",
		RoleChild:       "ta-IN-PallaviNeural",
		RoleAdultMale:   "ta-IN-ValluvarNeural",
		RoleAdultFemale: "ta-IN-PallaviNeural",
		RoleElderly:     "ta-IN-ValluvarNeural",
	},
}

var (
	supportedTags = []language.Tag{
		language.English,
		language.Hindi,
		language.Tamil,
	}
	supportedCodes  = []string{"en", "hi", "ta"}
	languageMatcher = language.NewMatcher(supportedTags)
)

// NormalizeLanguage maps an arbitrary BCP 47 tag (en-US, hi-Deva, ...) onto a
// supported voice-table language, falling back to English.
func NormalizeLanguage(tag string) string {
	parsed, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return defaultLanguage
	}
	_, idx, conf := languageMatcher.Match(parsed)
	if conf == language.No {
		return defaultLanguage
	}
	return supportedCodes[idx]
}

// VoiceFor selects the concrete voice id for a (language, role) pair. An
// unsupported language uses the default language's table.
func VoiceFor(lang string, role CharacterRole) string {
	voices, ok := voiceTable[NormalizeLanguage(lang)]
	if !ok {
		voices = voiceTable[defaultLanguage]
	}
	if voice, ok := voices[role]; ok {
		return voice
	}
	return voices[RoleNarrator]
}

// VoiceInfo describes one catalog entry exposed by the voices API.
type VoiceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
	Style    string `json:"style"`
}

// VoiceCatalog lists the available voices, optionally filtered by language.
func VoiceCatalog(lang string) []VoiceInfo {
	all := []VoiceInfo{
		{ID: "en-US-AriaNeural", Name: "Aria (English)", Language: "en", Gender: "female", Style: "conversational"},
		{ID: "en-US-GuyNeural", Name: "Guy (English)", Language: "en", Gender: "male", Style: "conversational"},
		{ID: "en-US-JennyNeural", Name: "Jenny (English)", Language: "en", Gender: "female", Style: "cheerful"},
		{ID: "en-US-DavisNeural", Name: "Davis (English)", Language: "en", Gender: "male", Style: "calm"},
		{ID: "hi-IN-SwaraNeural", Name: "Swara (Hindi)", Language: "hi", Gender: "female", Style: "conversational"},
		{ID: "hi-IN-MadhurNeural", Name: "Madhur (Hindi)", Language: "hi", Gender: "male", Style: "conversational"},
		{ID: "ta-IN-PallaviNeural", Name: "Pallavi (Tamil)", Language: "ta", Gender: "female", Style: "conversational"},
		{ID: "ta-IN-ValluvarNeural", Name: "Valluvar (Tamil)", Language: "ta", Gender: "male", Style: "conversational"},
	}
	if lang == "" {
		return all
	}
	normalized := NormalizeLanguage(lang)
	var filtered []VoiceInfo
	for _, v := range all {
		if v.Language == normalized {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// VoicePreset is a predefined character-type voice pairing.
type VoicePreset struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Language      string `json:"language"`
	VoiceID       string `json:"voice_id"`
	CharacterType string `json:"character_type"`
	Emotion       string `json:"emotion"`
	Description   string `json:"description"`
}

// VoicePresets lists the predefined presets for common character types.
func VoicePresets() []VoicePreset {
	return []VoicePreset{
		{ID: "narrator_en", Name: "English Narrator", Language: "en", VoiceID: "en-US-AriaNeural", CharacterType: "narrator", Emotion: "calm", Description: "Clear, engaging narrator voice"},
		{ID: "narrator_hi", Name: "Hindi Narrator", Language: "hi", VoiceID: "hi-IN-SwaraNeural", CharacterType: "narrator", Emotion: "calm", Description: "Clear Hindi narrator voice"},
		{ID: "narrator_ta", Name: "Tamil Narrator", Language: "ta", VoiceID: "ta-IN-PallaviNeural", CharacterType: "narrator", Emotion: "calm", Description: "Clear Tamil narrator voice"},
		{ID: "child_en", Name: "English Child", Language: "en", VoiceID: "en-US-JennyNeural", CharacterType: "child", Emotion: "cheerful", Description: "Playful child character voice"},
		{ID: "hero_en", Name: "English Hero", Language: "en", VoiceID: "en-US-GuyNeural", CharacterType: "adult_male", Emotion: "confident", Description: "Strong, heroic character voice"},
		{ID: "hero_hi", Name: "Hindi Hero", Language: "hi", VoiceID: "hi-IN-MadhurNeural", CharacterType: "adult_male", Emotion: "confident", Description: "Strong Hindi hero voice"},
	}
}

// Emotion describes one supported synthesis emotion.
type Emotion struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Emotions lists the emotions the speech backend can express.
func Emotions() []Emotion {
	return []Emotion{
		{ID: "neutral", Name: "Neutral", Description: "Natural, conversational tone"},
		{ID: "cheerful", Name: "Cheerful", Description: "Happy and upbeat"},
		{ID: "excited", Name: "Excited", Description: "Energetic and enthusiastic"},
		{ID: "calm", Name: "Calm", Description: "Peaceful and soothing"},
		{ID: "sad", Name: "Sad", Description: "Melancholic and gentle"},
		{ID: "angry", Name: "Angry", Description: "Intense and forceful"},
		{ID: "gentle", Name: "Gentle", Description: "Soft and caring"},
	}
}
