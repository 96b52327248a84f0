package utils

import (
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	"github.com/sirupsen/logrus"
)

type ResponseData struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded escalates err to the Recovery middleware, which renders it.
func PanicIfNeeded(err any) {
	if err == nil {
		return
	}
	if e, ok := err.(error); ok {
		if _, generic := e.(pkgError.GenericError); !generic {
			logrus.WithError(e).Debug("[REST] unclassified error reached handler")
		}
	}
	panic(err)
}
