package whatsapp

import "encoding/xml"

// ContentTypeTwiML is content type of synchronous webhook reply
const ContentTypeTwiML = "text/xml; charset=utf-8"

type twimlResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// MessagingResponse renders TwiML reply with messages, empty messages are skipped
func MessagingResponse(messages ...string) ([]byte, error) {
	resp := twimlResponse{}
	for _, m := range messages {
		if m != "" {
			resp.Messages = append(resp.Messages, m)
		}
	}

	body, err := xml.Marshal(resp)
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), body...), nil
}
