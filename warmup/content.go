package warmup

import (
	"fmt"
	"math/rand"
)

var warmupSubjects = []string{
	"Quick question about your recent post",
	"Following up on our last conversation",
	"Checking in to see how you're doing",
	"Thought you might find this interesting",
	"Let's reconnect soon",
	"An idea I wanted to share with you",
	"Regarding your recent project",
}

var warmupBodies = []string{
	"Hi there,\n\nI wanted to follow up on our previous conversation. Let me know if you have any questions!\n\nBest regards,\n%s",
	"Hello,\n\nI came across this and thought you might find it valuable. What do you think?\n\nRegards,\n%s",
	"Hi,\n\nJust checking in to see if you had any thoughts on this topic?\n\nThanks,\n%s",
	"Greetings,\n\nI wanted to share this with you. Let me know your thoughts when you get a chance.\n\nBest,\n%s",
	"Hello,\n\nHope this message finds you well. I wanted to touch base about...\n\nWarm regards,\n%s",
}

var autoReplyBodies = []string{
	"Thanks for reaching out! This sounds interesting, let me take a look.\n\nBest,\n%s",
	"Appreciate the note. I'll get back to you with more thoughts soon.\n\nRegards,\n%s",
	"Good to hear from you! Let's catch up on this next week.\n\nCheers,\n%s",
	"Thanks for the follow-up, I had been meaning to reply.\n\nBest,\n%s",
}

// generateWarmupContent returns a varied subject and body for a warmup send.
func generateWarmupContent(fromName string) (string, string) {
	subject := warmupSubjects[rand.Intn(len(warmupSubjects))]
	body := fmt.Sprintf(warmupBodies[rand.Intn(len(warmupBodies))], fromName)
	return subject, body
}

// generateAutoReply returns a varied reply body for mailbox maintenance.
func generateAutoReply(fromName, subject string) (string, string) {
	body := fmt.Sprintf(autoReplyBodies[rand.Intn(len(autoReplyBodies))], fromName)
	return "Re: " + subject, body
}
