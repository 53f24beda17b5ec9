// Package pet holds what the desktop pet knows about emotions: which
// animation plays for each label, what it says, and which pets exist.
package pet

// Mood names an animation set.
type Mood string

// Animation moods.
const (
	Happiness Mood = "Happiness"
	Sadness   Mood = "Sadness"
	Anger     Mood = "Anger"
	Surprise  Mood = "Surprise"
	Neutral   Mood = "Neutral"
)

// Moods lists every mood in display order.
func Moods() []Mood {
	return []Mood{Happiness, Sadness, Anger, Surprise, Neutral}
}

var moodByLabel = map[string]Mood{
	"Happy":    Happiness,
	"Sad":      Sadness,
	"Angry":    Anger,
	"Surprise": Surprise,
	"Neutral":  Neutral,
	"Fear":     Surprise,
	"Disgust":  Sadness,
}

// MoodFor maps a published label to a mood. Anything unmapped, including
// "No face" and the empty label, shows Neutral.
func MoodFor(label string) Mood {
	if m, ok := moodByLabel[label]; ok {
		return m
	}
	return Neutral
}

var responses = map[Mood]string{
	Happiness: "Yay! I'm so happy with you! 😺",
	Sadness:   "Aww... Don't worry, I'm here for you 💕",
	Anger:     "Take a deep breath... You’ve got this 💪",
	Surprise:  "Whoa! That was unexpected! 😸",
	Neutral:   "Hmm... A calm day feels nice 💤",
}

// Response is the speech bubble text for a mood.
func Response(m Mood) string {
	if r, ok := responses[m]; ok {
		return r
	}
	return responses[Neutral]
}

// DogMessages are the canned lines of dog mode, shown in order.
var DogMessages = []string{
	"Hey, puppy, you look great today! ",
	"What did you have for lunch?",
	"Wish I could go for a walk right now!",
}
