package validator

import (
	"testing"

	"mwork_messaging/internal/services/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	v := New()

	err := v.Validate(&dto.StartConversationRequest{Kind: "chat"})
	require.Error(t, err)

	vErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "This field is required", vErr.Errors["participant_id"])
	assert.Contains(t, vErr.Errors, "kind")
}

func TestValidate_CustomRules(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		obj   interface{}
		valid bool
	}{
		{"тип сообщения по умолчанию", &dto.PostMessageRequest{Content: "hi"}, true},
		{"известный тип сообщения", &dto.PostMessageRequest{Content: "hi", Kind: "file"}, true},
		{"неизвестный тип сообщения", &dto.PostMessageRequest{Content: "hi", Kind: "video"}, false},
		{"тип диалога", &dto.StartConversationRequest{ParticipantID: "u-1", Kind: "interview"}, true},
		{"приоритет", &dto.DispatchNotificationRequest{RecipientID: "u-1", Type: "system", Title: "t", Priority: "urgent"}, true},
		{"неизвестный приоритет", &dto.DispatchNotificationRequest{RecipientID: "u-1", Type: "system", Title: "t", Priority: "critical"}, false},
		{"вложение без url", &dto.PostMessageRequest{Content: "hi", Attachments: []dto.AttachmentRequest{{Type: "file"}}}, false},
		{"телефон не e164", &dto.UpdateContactsRequest{Phone: "8 701 123 45 67"}, false},
		{"телефон e164", &dto.UpdateContactsRequest{Phone: "+77011234567"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.obj)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
