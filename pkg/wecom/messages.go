package wecom

// Webhook message payloads, mirroring the group-robot send API.

type message struct {
	MsgType  string           `json:"msgtype"`
	Text     *textPayload     `json:"text,omitempty"`
	Markdown *markdownPayload `json:"markdown,omitempty"`
	Image    *imagePayload    `json:"image,omitempty"`
	File     *filePayload     `json:"file,omitempty"`
}

type textPayload struct {
	Content       string   `json:"content"`
	MentionedList []string `json:"mentioned_list,omitempty"`
}

type markdownPayload struct {
	Content string `json:"content"`
}

type imagePayload struct {
	Base64 string `json:"base64"`
	MD5    string `json:"md5"`
}

type filePayload struct {
	MediaID string `json:"media_id"`
}

// apiResponse is the common webhook reply envelope.
type apiResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// uploadResponse is the upload_media reply envelope.
type uploadResponse struct {
	ErrCode   int    `json:"errcode"`
	ErrMsg    string `json:"errmsg"`
	Type      string `json:"type,omitempty"`
	MediaID   string `json:"media_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}
