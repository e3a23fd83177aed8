// Package chatbot implements the deterministic shop assistant: regex intent
// classification, lexicon keyword extraction and catalog-backed replies.
package chatbot

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/store"
)

const maxSuggestions = 3

// Intent is the classified purpose of a chat message.
type Intent string

const (
	IntentRecommendation Intent = "recommendation"
	IntentSearch         Intent = "search"
	IntentHelp           Intent = "help"
	IntentGreeting       Intent = "greeting"
	IntentFarewell       Intent = "farewell"
	IntentUnknown        Intent = "unknown"
)

// Reply is one assistant answer.
type Reply struct {
	Intent  Intent `json:"intent"`
	Message string `json:"message"`
}

type intentRule struct {
	intent   Intent
	patterns []*regexp.Regexp
}

func compileRules() []intentRule {
	mk := func(intent Intent, exprs ...string) intentRule {
		rule := intentRule{intent: intent}
		for _, expr := range exprs {
			rule.patterns = append(rule.patterns, regexp.MustCompile(expr))
		}
		return rule
	}
	// Order matters: the first matching rule wins.
	return []intentRule{
		mk(IntentRecommendation,
			`recommend.*book`, `suggest.*book`, `what.*read`,
			`book.*recommend`, `find.*book`, `good.*book`),
		mk(IntentSearch,
			`find.*by`, `search.*for`, `look.*for`,
			`books.*about`, `books.*author`),
		mk(IntentHelp, `help`, `what.*can.*do`, `how.*work`, `assist`),
		mk(IntentGreeting, `hello`, `hi`, `hey`, `good.*morning`, `good.*afternoon`),
		mk(IntentFarewell, `bye`, `goodbye`, `see.*you`, `thanks`),
	}
}

// keywords extracted from a message against fixed lexicons.
type keywords struct {
	genres  []string
	authors []string
	topics  []string
	tokens  []string
}

func (k keywords) empty() bool {
	return len(k.genres) == 0 && len(k.authors) == 0 && len(k.topics) == 0
}

var (
	genreLexicon = []string{
		"fiction", "non-fiction", "mystery", "romance", "science", "history",
		"biography", "fantasy", "thriller", "horror", "comedy", "drama",
	}
	authorLexicon = []string{
		"stephen king", "j.k. rowling", "agatha christie", "dan brown",
		"harry potter", "sherlock holmes",
	}
	topicLexicon = []string{
		"habit", "productivity", "self-help", "business", "technology",
		"programming", "cooking", "travel", "health",
	}
	tokenPattern = regexp.MustCompile(`[a-z0-9]+(?:[-'][a-z0-9]+)*`)
)

var responseTemplates = map[Intent][]string{
	IntentRecommendation: {
		"Based on your interests, I recommend: %s",
		"You might enjoy these books: %s",
		"Here are some great recommendations: %s",
		"I think you'll love these: %s",
	},
	IntentSearch: {
		"I found these books matching your query: %s",
		"Here are the books I found: %s",
		"Check out these results: %s",
	},
	IntentHelp: {
		"I can help you find book recommendations, search for books, or answer questions about our bookstore!",
		"Try asking me to recommend books by genre, author, or topic. I can also help with general bookstore questions.",
		"I'm here to help with book recommendations, searches, and general inquiries!",
	},
	IntentGreeting: {
		"Hello! I'm your book assistant. How can I help you discover amazing books today?",
		"Hi there! Ready to find your next great read?",
		"Welcome! I'm here to help you find the perfect book.",
	},
	IntentFarewell: {
		"Happy reading! Come back anytime for more recommendations.",
		"Enjoy your books! See you soon.",
		"Take care and keep reading!",
	},
	IntentUnknown: {
		"I'm not sure I understand. Could you rephrase that?",
		"Hmm, I'm still learning. Can you try asking differently?",
		"I didn't catch that. Try asking about book recommendations or searches.",
	},
}

// Chatbot answers shop questions from the catalog and marketplace.
type Chatbot struct {
	store store.Store
	rules []intentRule
	rng   *rand.Rand
}

// New builds a chatbot over the given store. Seed fixes template selection,
// which tests rely on.
func New(st store.Store, seed int64) *Chatbot {
	return &Chatbot{store: st, rules: compileRules(), rng: rand.New(rand.NewSource(seed))}
}

// Reply classifies the message and produces an answer. userID may be empty
// for anonymous visitors.
func (c *Chatbot) Reply(userID, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, fmt.Errorf("chat message required")
	}
	intent := c.classify(message)
	kw := extractKeywords(message)

	switch intent {
	case IntentRecommendation:
		titles, err := c.suggestTitles(userID, kw)
		if err != nil {
			return Reply{}, err
		}
		if len(titles) == 0 {
			return Reply{Intent: intent, Message: "I couldn't find specific recommendations. Try our top-rated books!"}, nil
		}
		return Reply{Intent: intent, Message: fmt.Sprintf(c.pick(intent), strings.Join(titles, ", "))}, nil
	case IntentSearch:
		titles, err := c.searchTitles(kw)
		if err != nil {
			return Reply{}, err
		}
		if len(titles) == 0 {
			return Reply{Intent: intent, Message: "I couldn't find books matching your search. Try different keywords!"}, nil
		}
		return Reply{Intent: intent, Message: fmt.Sprintf(c.pick(intent), strings.Join(titles, ", "))}, nil
	default:
		return Reply{Intent: intent, Message: c.pick(intent)}, nil
	}
}

func (c *Chatbot) classify(message string) Intent {
	lower := strings.ToLower(message)
	for _, rule := range c.rules {
		for _, pattern := range rule.patterns {
			if pattern.MatchString(lower) {
				return rule.intent
			}
		}
	}
	return IntentUnknown
}

func (c *Chatbot) pick(intent Intent) string {
	templates := responseTemplates[intent]
	return templates[c.rng.Intn(len(templates))]
}

// suggestTitles prefers keyword matches; without keywords it falls back to
// genres from the user's past orders, then to top-rated books.
func (c *Chatbot) suggestTitles(userID string, kw keywords) ([]string, error) {
	if !kw.empty() {
		return c.searchTitles(kw)
	}
	books, err := c.store.ListBooks(store.BookFilter{Sort: "rating"})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	if userID != "" {
		orders, err := c.store.ListOrdersByUser(userID, domain.OrderConfirmed, domain.OrderShipped, domain.OrderDelivered)
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		owned := map[string]bool{}
		genres := map[string]bool{}
		for _, o := range orders {
			if o.BookID == "" {
				continue
			}
			owned[o.BookID] = true
			if b, ok, err := c.store.GetBook(o.BookID); err != nil {
				return nil, err
			} else if ok {
				genres[strings.ToLower(b.Genre)] = true
			}
		}
		if len(genres) > 0 {
			var titles []string
			for _, b := range books {
				if owned[b.ID] || !genres[strings.ToLower(b.Genre)] {
					continue
				}
				titles = append(titles, b.Title)
				if len(titles) == maxSuggestions {
					return titles, nil
				}
			}
			if len(titles) > 0 {
				return titles, nil
			}
		}
	}
	var titles []string
	for _, b := range books {
		titles = append(titles, b.Title)
		if len(titles) == maxSuggestions {
			break
		}
	}
	return titles, nil
}

// searchTitles matches keyword lexicon hits against catalog books and
// available listings, falling back to raw-token title/author matching.
func (c *Chatbot) searchTitles(kw keywords) ([]string, error) {
	books, err := c.store.ListBooks(store.BookFilter{Sort: "rating"})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	listings, err := c.store.ListUserBooks(store.UserBookFilter{OnlyAvailable: true})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}

	match := func(title, author, genre, category, description string) bool {
		return matchesKeywords(kw, title, author, genre, category, description)
	}
	var titles []string
	for _, b := range books {
		if match(b.Title, b.Author, b.Genre, b.Category, b.Description) {
			titles = append(titles, b.Title)
		}
	}
	for _, ub := range listings {
		if len(titles) >= maxSuggestions {
			break
		}
		if match(ub.Title, ub.Author, ub.Genre, "", ub.Description) {
			titles = append(titles, ub.Title)
		}
	}
	if len(titles) == 0 {
		// Fall back to the first few raw tokens against titles and authors.
		tokens := kw.tokens
		if len(tokens) > 3 {
			tokens = tokens[:3]
		}
		for _, b := range books {
			for _, tok := range tokens {
				if containsFold(b.Title, tok) || containsFold(b.Author, tok) {
					titles = append(titles, b.Title)
					break
				}
			}
		}
	}
	if len(titles) > maxSuggestions {
		titles = titles[:maxSuggestions]
	}
	return titles, nil
}

func matchesKeywords(kw keywords, title, author, genre, category, description string) bool {
	if len(kw.genres) > 0 && !anyContained(kw.genres, genre, category) {
		return false
	}
	if len(kw.authors) > 0 && !anyContained(kw.authors, author) {
		return false
	}
	if len(kw.topics) > 0 && !anyContained(kw.topics, title, description) {
		return false
	}
	return !kw.empty()
}

func anyContained(needles []string, haystacks ...string) bool {
	for _, needle := range needles {
		for _, hay := range haystacks {
			if containsFold(hay, needle) {
				return true
			}
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func extractKeywords(message string) keywords {
	lower := strings.ToLower(message)
	tokens := tokenPattern.FindAllString(lower, -1)
	joined := strings.Join(tokens, " ")

	kw := keywords{tokens: tokens}
	for _, g := range genreLexicon {
		if strings.Contains(joined, g) {
			kw.genres = append(kw.genres, g)
		}
	}
	for _, a := range authorLexicon {
		if strings.Contains(lower, a) {
			kw.authors = append(kw.authors, a)
		}
	}
	for _, t := range topicLexicon {
		if strings.Contains(joined, t) {
			kw.topics = append(kw.topics, t)
		}
	}
	sort.Strings(kw.genres)
	sort.Strings(kw.topics)
	return kw
}
