package chat

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/CognicAI/EduLearn-sub001/core"
)

var (
	chatRoleTag  = "chatrole"
	chatRoleText = "role must be one of user or assistant"
)

// InitValidators registers the chat validators. core.InitValidators must be called first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(chatRoleTag, chatRoleValidation)
	core.RegisterCustomTranslation(validate, translator, chatRoleTag, chatRoleText)
}

// chatRoleValidation checks that a message role is one a client can send.
func chatRoleValidation(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case SenderUser, SenderAssistant:
		return true
	}
	return false
}
