package mood

import "strings"

// windowSize is how many trailing text messages feed the classifier.
const windowSize = 3

// latestWeight boosts the newest message so the mood flips quickly when the
// tone changes; older messages in the window only provide context.
const latestWeight = 5.0

// minScore below which the signal degrades to neutral.
const minScore = 0.1

type category struct {
	id       string
	emoji    string
	label    string
	keywords []string
}

// Categories are evaluated in declared order; score ties break toward the
// earlier entry, which keeps the output deterministic.
var categories = []category{
	{
		id: "happy", emoji: "😊", label: "Positive Vibes",
		keywords: []string{
			"happy", "great", "awesome", "amazing", "good", "love", "nice", "wow", "haha", "lol", "lmao",
			"mast", "badhiya", "sahi", "super", "bagundhi", "kekka", "adhirindhi", "keka", "manchi",
			"enjoy", "party", "fun", "congrats", "mubarak", "subhakankshalu", "cool", "😊", "😂", "🤣", "💖",
			"glad", "cheerful", "delighted", "pleased", "yaay", "yippee",
			"kirrak", "thop", "arachakam", "santhosham", "navvu", "super ra", "kummesavu", "chinchavu", "baga",
			"santhoshamga",
		},
	},
	{
		id: "sad", emoji: "😔", label: "Feeling Down",
		keywords: []string{
			"sad", "upset", "bad", "crying", "cry", "alone", "hurt", "pain", "sorry", "miss", "broken",
			"dukhi", "parishan", "rondu", "kastam", "badhaga", "baadha", "dipper", "tension", "stress",
			"feeling low", "disappointed", "😔", "😭", "😢", "💔", "😿", "gloomy", "depressed", "unhappy",
			"grief", "tragic", "loss",
			"ayyo", "shit", "edupu", "noddu", "vaddhu", "karim", "mood ledu", "poyi", "ontari",
		},
	},
	{
		id: "angry", emoji: "😡", label: "Heated Moment",
		keywords: []string{
			"angry", "hate", "shut up", "stop", "mad", "stupid", "idiot", "annoyed", "pissed",
			"gussa", "dimag kharab", "pagal", "kopam", "chi", "enough", "useless", "fool",
			"why", "wtf", "hell", "nonsense", "seriously", "😡", "😠", "🤬", "👊", "😤",
			"dont want to talk", "no more", "leave me", "go away", "irritating", "rubbish",
			"musuko", "dengey", "waste", "yedava", "donga", "pichi", "thikka", "mental", "burra",
		},
	},
	{
		id: "excited", emoji: "🤩", label: "High Energy!",
		keywords: []string{
			"excited", "cant wait", "omg", "eager", "pumped", "hyped", "thrilled", "woah", "yesss",
			"hurray", "boom", "crazy", "fantastic", "fabulous", "🤩", "🥳", "🎉", "🔥", "⚡",
			"waiting", "dying to see", "lets go", "bring it on",
			"vammo", "abbo", "suprrrr", "wait chestunna", "mass", "racha",
		},
	},
	{
		id: "romantic", emoji: "🥰", label: "Love is in the air",
		keywords: []string{
			"love you", "miss you", "darling", "honey", "baby", "babe", "sweetheart", "jaan", "dear",
			"kiss", "heart", "romance", "passionate", "cute", "beautiful", "handsome", "sexy", "hot",
			"😍", "😘", "🥰", "💕", "💞", "💘", "marry", "date", "forever",
			"prema", "priyatama", "bangaram", "bujji", "chitti", "kanna", "pranam", "muddu", "miss autunna", "naa pranam",
		},
	},
	{
		id: "calm", emoji: "😌", label: "Peaceful Flow",
		keywords: []string{
			"calm", "relax", "chill", "peace", "peaceful", "serene", "quiet", "meditate", "zen",
			"okay", "fine", "no problem", "all good", "cool", "steady", "balanced", "😌", "🕊️",
			"relaxed", "easy", "smooth",
			"prashantham", "haayi", "nemmadhi", "shanthi", "taggindi",
		},
	},
	{
		id: "confused", emoji: "🤔", label: "Confusion detected",
		keywords: []string{
			"confused", "what", "huh", "why", "how", "weird", "strange", "?", "??", "idk", "dunno",
			"baffled", "lost", "clear", "uncertain", "not sure", "doubt", "puzzled", "🤔", "😕", "🧐",
			"enti", "yenti", "ardham kaale", "confusion", "emto", "emi", "enduku",
		},
	},
	{
		id: "serious", emoji: "😐", label: "Serious Talk",
		keywords: []string{
			"serious", "listen", "important", "urgent", "matter", "discuss", "focus", "attention",
			"strictly", "crucial", "critical", "no joke", "deadly", "severe", "truth", "fact", "😐", "🤐",
			"nijam", "tappadu", "avsaram", "matter undi", "serious ga",
		},
	},
	{
		id: "sarcastic", emoji: "🙄", label: "Sarcasm detected",
		keywords: []string{
			"yeah right", "sure", "whatever", "slow clap", "great job", "nice one", "genius",
			"obviously", "clearly", "wow", "thanks a lot", "big deal", "🙄", "😒", "fuck off", "clap",
			"avuna", "nijama", "great le", "pedda", "chal", "lite",
		},
	},
	{
		id: "supportive", emoji: "🤗", label: "Supportive Tone",
		keywords: []string{
			"there for you", "dont worry", "it will be ok", "im here", "help", "support", "got your back",
			"care", "protect", "understand", "listening", "proud", "brave", "strong", "you can do it",
			"👍", "🤝", "🤗", "💪",
			"nenunna", "nenu unna", "bhayam vaddu", "dhairyam", "thodu", "parledu",
		},
	},
	{
		id: "neutral", emoji: "😶", label: "Neutral",
		keywords: []string{
			"ok", "okay", "hmm", "k", "yeah", "yes", "no", "see", "check", "done", "will do",
			"maybe", "fine", "alright", "correct", "right",
			"sare", "hamm", "sari", "aithe", "chuddam",
		},
	},
}

var neutral = Mood{ID: "neutral", Emoji: "😶", Label: "Neutral"}

// KeywordClassifier scores each category by keyword hits across a sliding
// window of recent text messages, with recency weighting.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Classify(texts []string) *Mood {
	if len(texts) == 0 {
		return nil
	}
	if len(texts) > windowSize {
		texts = texts[len(texts)-windowSize:]
	}

	scores := make([]float64, len(categories))
	for i, text := range texts {
		lower := strings.ToLower(text)

		weight := 1.0
		if i == len(texts)-1 {
			weight = latestWeight
		}

		for ci, cat := range categories {
			for _, keyword := range cat.keywords {
				if strings.Contains(lower, keyword) {
					matchScore := 1.0
					if lower == keyword {
						matchScore = 2.0 // whole message is the keyword
					}
					scores[ci] += matchScore * weight
				}
			}
		}
	}

	best := -1
	var bestScore float64
	for i, score := range scores {
		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	if best < 0 || bestScore < minScore {
		n := neutral
		return &n
	}

	return &Mood{
		ID:    categories[best].id,
		Emoji: categories[best].emoji,
		Label: categories[best].label,
		Score: bestScore,
	}
}
