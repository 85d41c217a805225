package intent

import (
	"encoding/json"
	"fmt"
)

// ID identifies an intent detector.
type ID string

const (
	TextWantedOnImage        ID = "IS_TEXT_WANTED_ON_IMAGE"
	StartNewImage            ID = "START_NEW_IMAGE"
	ImageComplaint           ID = "USER_COMPLAINT_IMAGE_QUALITY_OR_WRONG_CONTENT"
	GenerationSpeedComplaint ID = "USER_COMPLAINT_IMAGE_GENERATION_SPEED"
	NatureOfRequest          ID = "NATURE_OF_USER_REQUEST"
)

// Property names emitted by the detectors.
const (
	PropTextWantedOnImage = "is_text_wanted_on_image"
	PropStartNewImage     = "start_new_image"
	PropComplaintType     = "complaint_type"
	PropComplaintText     = "complaint_text"
	PropNatureOfRequest   = "nature_of_user_request"
)

// Complaint types reported under ImageComplaint and GenerationSpeedComplaint.
const (
	ComplaintBlurry           = "blurry"
	ComplaintWrongContent     = "wrong_content"
	ComplaintProblemsWithText = "problems_with_text"
	ComplaintBoring           = "boring"
	ComplaintTooSlow          = "generate_image_too_slow"
)

// RequestCreateNewImage is the NatureOfRequest value that implies a new image.
const RequestCreateNewImage = "create_new_image_request"

// Child is one key/value record emitted by a classification call.
type Child map[string]any

// Result is the normalized output of one intent detector: always a list of
// child records, whatever shape the model returned.
type Result struct {
	IntentID ID      `json:"intent_detector_id" yaml:"intent_detector_id"`
	Children []Child `json:"array_child_objects" yaml:"array_child_objects"`
}

// Normalize converts a decoded JSON value into a Result. A single object
// becomes a one-element list; an array must contain only objects.
func Normalize(id ID, raw any) (Result, error) {
	res := Result{IntentID: id}
	switch v := raw.(type) {
	case map[string]any:
		res.Children = []Child{Child(v)}
	case []any:
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return Result{}, fmt.Errorf("intent %s: element %d is %T, not an object", id, i, item)
			}
			res.Children = append(res.Children, Child(obj))
		}
	case nil:
		// An empty response means the detector found nothing.
	default:
		return Result{}, fmt.Errorf("intent %s: response is %T, not an object or array", id, raw)
	}
	return res, nil
}

// UnmarshalJSON accepts array_child_objects as either an array or a single
// object, so histories written by older clients still load.
func (r *Result) UnmarshalJSON(data []byte) error {
	var wire struct {
		IntentID ID              `json:"intent_detector_id"`
		Children json.RawMessage `json:"array_child_objects"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var raw any
	if len(wire.Children) > 0 {
		if err := json.Unmarshal(wire.Children, &raw); err != nil {
			return fmt.Errorf("decoding children of %s: %w", wire.IntentID, err)
		}
	}
	norm, err := Normalize(wire.IntentID, raw)
	if err != nil {
		return err
	}
	*r = norm
	return nil
}
