package app

import (
	"context"
	"fmt"

	"bibliotrack/pkg/chatbot"
)

// ChatReply is the assistant's answer, with any cover matches when the
// user attached a photo.
type ChatReply struct {
	Intent  chatbot.Intent `json:"intent"`
	Message string         `json:"message"`
}

// Chat answers a storefront assistant message. When an image is attached
// the reply comes from visual cover search instead of intent matching.
func (a *App) Chat(ctx context.Context, userID, message string, image []byte) (ChatReply, error) {
	if len(image) > 0 {
		hits, err := a.VisualSearch(ctx, image, 3)
		if err != nil {
			return ChatReply{}, err
		}
		if len(hits) == 0 {
			return ChatReply{
				Intent:  chatbot.IntentSearch,
				Message: "I couldn't match that cover to anything in the store. Try a clearer photo, or tell me the title.",
			}, nil
		}
		titles := make([]string, len(hits))
		for i, h := range hits {
			titles[i] = h.Title()
		}
		return ChatReply{
			Intent:  chatbot.IntentSearch,
			Message: fmt.Sprintf("That cover looks like: %s.", joinTitles(titles)),
		}, nil
	}

	reply, err := a.bot.Reply(userID, message)
	if err != nil {
		return ChatReply{}, invalidf("%v", err)
	}
	return ChatReply{Intent: reply.Intent, Message: reply.Message}, nil
}

func joinTitles(titles []string) string {
	switch len(titles) {
	case 0:
		return ""
	case 1:
		return titles[0]
	case 2:
		return titles[0] + " or " + titles[1]
	default:
		out := titles[0]
		for _, t := range titles[1 : len(titles)-1] {
			out += ", " + t
		}
		return out + ", or " + titles[len(titles)-1]
	}
}
