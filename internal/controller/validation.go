package controller

import (
	"quiz_backend/internal/model"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators 在 gin 的绑定引擎上注册自定义校验标签
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("questiontype", func(fl validator.FieldLevel) bool {
				return model.QuestionType(fl.Field().String()).Valid()
			})
		}
	})
}

// bindingMessage 将校验错误转换为可读信息
func bindingMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return err.Error()
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "questiontype":
		return fe.Field() + " must be one of multiple-choice, true-false, short-answer"
	case "min", "max":
		return fe.Field() + " must satisfy " + fe.Tag() + "=" + fe.Param()
	default:
		return fe.Error()
	}
}
