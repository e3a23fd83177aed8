package moderation

import "fmt"

// Built-in labelled corpus. Sentences are generated from word lists so the
// classifier learns the vocabulary rather than memorizing sentences.

var toxicWords = []string{
	"hate", "stupid", "idiot", "dumb", "moron", "asshole", "bastard", "shit", "fuck",
	"damn", "hell", "crap", "bullshit", "suck", "terrible", "awful", "horrible",
	"worst", "pathetic", "useless", "garbage", "trash", "jerk", "loser",
}

var cleanWords = []string{
	"great", "excellent", "wonderful", "amazing", "fantastic", "good", "nice",
	"beautiful", "perfect", "awesome", "brilliant", "superb", "outstanding",
	"love", "enjoy", "happy", "pleased", "satisfied", "delighted",
}

var neutralSentences = []string{
	"I finished reading this book yesterday",
	"The plot was interesting but predictable",
	"I would recommend this to my friends",
	"The characters were well developed",
	"The writing style was engaging",
	"I learned a lot from this book",
	"The ending was surprising",
	"This author has a unique voice",
	"I couldn't put this book down",
	"The setting was beautifully described",
}

var sentenceForms = []string{
	"This book is %s",
	"The author is such a %s",
	"I %s this story",
	"What a %s ending",
	"This is completely %s",
}

func trainingCorpus() (texts []string, labels []int) {
	for _, word := range toxicWords {
		for _, form := range sentenceForms {
			texts = append(texts, fmt.Sprintf(form, word))
			labels = append(labels, 1)
		}
	}
	for _, word := range cleanWords {
		for _, form := range sentenceForms {
			texts = append(texts, fmt.Sprintf(form, word))
			labels = append(labels, 0)
		}
	}
	for _, sentence := range neutralSentences {
		texts = append(texts, sentence)
		labels = append(labels, 0)
	}
	return texts, labels
}
