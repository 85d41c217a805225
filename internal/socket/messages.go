package socket

import "encoding/json"

// Inbound message types.
const (
	TypeRequestImageAssistant   = "request_image_assistant"
	TypeRequestLicenseAssistant = "request_license_assistant"
	TypeShareImageOnTwitter     = "share_image_on_twitter"
	TypeMintNFT                 = "mint_nft"
	TypeGetBlockchainPresence   = "request_get_user_blockchain_presence"
	TypeStoreBlockchainPresence = "request_store_user_blockchain_presence"
)

// Outbound message types.
const (
	TypeState = "state"
	TypeText  = "text"
	TypeImage = "image"
	TypeError = "error"
)

// unsupported are recognized client requests this server does not serve.
var unsupported = map[string]bool{
	TypeRequestLicenseAssistant: true,
	TypeShareImageOnTwitter:     true,
	TypeMintNFT:                 true,
	TypeGetBlockchainPresence:   true,
	TypeStoreBlockchainPresence: true,
}

// inbound is a client message before its payload is decoded.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope is every message sent to the client.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ImageAssistantRequest is the payload of a request_image_assistant message.
type ImageAssistantRequest struct {
	UserID              string `json:"user_id"`
	Prompt              string `json:"prompt"`
	ImageProcessingMode string `json:"image_processing_mode"`
	ActiveImageURL      string `json:"url_to_active_image_in_client"`
}

// StatePayload tells the client what the server is busy with.
type StatePayload struct {
	StreamingAudio     bool   `json:"streaming_audio"`
	StreamingText      bool   `json:"streaming_text"`
	WaitingForImages   bool   `json:"waiting_for_images"`
	CurrentRequestID   string `json:"current_request_id"`
	StateChangeMessage string `json:"state_change_message"`
}

// TextPayload carries the answer text, raw and rendered.
type TextPayload struct {
	Delta string `json:"delta"`
	HTML  string `json:"html"`
}

// ImagePayload ends an image assistant turn.
type ImagePayload struct {
	URLs []string `json:"urls"`
}

// ErrorPayload reports a failed request.
type ErrorPayload struct {
	Error string `json:"error"`
}
