package telephony

import (
	"strconv"

	"github.com/twilio/twilio-go/twiml"

	"github.com/echoline-ai/echoline/internal/dialog"
)

// DefaultVoice is used when the session has no voice preference.
const DefaultVoice = "alice"

// RenderTwiML turns a dialog instruction into the TwiML document the
// provider executes: optional Say, then either a Gather for the next
// caller input or a Hangup.
func RenderTwiML(in dialog.Instruction, voice string) (string, error) {
	if voice == "" {
		voice = DefaultVoice
	}

	var verbs []twiml.Element
	if in.Say != "" {
		verbs = append(verbs, &twiml.VoiceSay{
			Message: in.Say,
			Voice:   voice,
		})
	}
	if in.Listen {
		verbs = append(verbs, &twiml.VoiceGather{
			Input:         "speech dtmf",
			Action:        in.ActionURL,
			Method:        "POST",
			Timeout:       strconv.Itoa(int(in.ListenTimeout.Seconds())),
			SpeechTimeout: "auto",
		})
	}
	if in.Hangup {
		verbs = append(verbs, &twiml.VoiceHangup{})
	}
	return twiml.Voice(verbs)
}
