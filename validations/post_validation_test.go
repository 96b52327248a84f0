package validations

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	domainAuth "github.com/AzielCF/az-grouppost/domains/auth"
	domainPost "github.com/AzielCF/az-grouppost/domains/post"
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
)

var now = time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)

func validRequest() domainPost.CreatePostRequest {
	return domainPost.CreatePostRequest{
		GroupID:     "grp_1",
		Title:       "Hello",
		Text:        "World",
		ScheduledAt: now.Add(time.Hour),
	}
}

func TestValidateCreatePost(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(r *domainPost.CreatePostRequest)
		wantErr bool
	}{
		{name: "valid one-shot", mutate: func(r *domainPost.CreatePostRequest) {}},
		{name: "missing group", mutate: func(r *domainPost.CreatePostRequest) { r.GroupID = "" }, wantErr: true},
		{name: "missing title", mutate: func(r *domainPost.CreatePostRequest) { r.Title = "" }, wantErr: true},
		{name: "missing text", mutate: func(r *domainPost.CreatePostRequest) { r.Text = "" }, wantErr: true},
		{name: "long title and text", mutate: func(r *domainPost.CreatePostRequest) {
			r.Title = strings.Repeat("t", 200)
			r.Text = strings.Repeat("x", 5000)
		}},
		{name: "bad visibility", mutate: func(r *domainPost.CreatePostRequest) { r.Visibility = "friends" }, wantErr: true},
		{name: "group visibility", mutate: func(r *domainPost.CreatePostRequest) { r.Visibility = domainPost.VisibilityGroup }},
		{name: "past one-shot", mutate: func(r *domainPost.CreatePostRequest) { r.ScheduledAt = now.Add(-time.Minute) }, wantErr: true},
		{name: "past recurring template", mutate: func(r *domainPost.CreatePostRequest) {
			r.ScheduledAt = now.Add(-24 * time.Hour)
			r.Recurrence = &domainPost.Recurrence{Type: domainPost.RecurrenceDaily}
		}},
		{name: "weekly without days", mutate: func(r *domainPost.CreatePostRequest) {
			r.Recurrence = &domainPost.Recurrence{Type: domainPost.RecurrenceWeekly}
		}, wantErr: true},
		{name: "weekly out of range", mutate: func(r *domainPost.CreatePostRequest) {
			r.Recurrence = &domainPost.Recurrence{Type: domainPost.RecurrenceWeekly, Days: []int{1, 7}}
		}, wantErr: true},
		{name: "weekly", mutate: func(r *domainPost.CreatePostRequest) {
			r.Recurrence = &domainPost.Recurrence{Type: domainPost.RecurrenceWeekly, Days: []int{1, 3}}
		}},
		{name: "unknown recurrence", mutate: func(r *domainPost.CreatePostRequest) {
			r.Recurrence = &domainPost.Recurrence{Type: "yearly"}
		}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := ValidateCreatePost(context.Background(), req, now)
			if tc.wantErr {
				assert.Error(t, err)
				_, ok := err.(pkgError.ValidationError)
				assert.True(t, ok)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTwoFactor(t *testing.T) {
	assert.NoError(t, ValidateTwoFactor(context.Background(), domainAuth.TwoFactorRequest{Code: "123456"}))
	assert.NoError(t, ValidateTwoFactor(context.Background(), domainAuth.TwoFactorRequest{Code: "abcd-1234", Method: "otp"}))
	assert.Error(t, ValidateTwoFactor(context.Background(), domainAuth.TwoFactorRequest{Code: "12"}))
	assert.Error(t, ValidateTwoFactor(context.Background(), domainAuth.TwoFactorRequest{Code: "123456", Method: "sms"}))
	assert.Error(t, ValidateLogin(context.Background(), domainAuth.LoginRequest{Username: "me"}))
}
