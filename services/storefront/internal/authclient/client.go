package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"heritagecoffee/pkg/apiclient"
	"heritagecoffee/pkg/domain"
)

const (
	msgInvalidEmail     = "Adresse email invalide. Utilisez le format : example@email.com"
	msgEmailTaken       = "Cette adresse email est déjà utilisée."
	msgEmailTakenSignIn = "Cette adresse email est déjà utilisée. Essayez de vous connecter."
	emailTakenRaw       = "Email déjà utilisé"
)

// Client calls the signup and signin endpoints.
type Client struct {
	api *apiclient.Client
}

func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// SignUp creates an account. It does not sign the user in.
func (c *Client) SignUp(ctx context.Context, req domain.SignUpRequest) (domain.User, error) {
	req.EmailAddress = strings.TrimSpace(req.EmailAddress)
	if err := domain.Validate(req); err != nil {
		return domain.User{}, apiclient.ValidationError(err)
	}
	var user domain.User
	err := c.api.Do(ctx, apiclient.Request{
		Op:      "auth.signup",
		Method:  http.MethodPost,
		Path:    "/users/signup",
		Body:    req,
		Headers: apiclient.HeaderOptions{ContentType: apiclient.ContentJSON},
	}, &user)
	if err != nil {
		return domain.User{}, signUpError(err)
	}
	return user, nil
}

// SignIn exchanges credentials for a token and the user profile.
func (c *Client) SignIn(ctx context.Context, req domain.SignInRequest) (domain.SignInResponse, error) {
	req.EmailAddress = strings.TrimSpace(req.EmailAddress)
	if err := domain.Validate(req); err != nil {
		return domain.SignInResponse{}, apiclient.ValidationError(err)
	}
	var resp domain.SignInResponse
	err := c.api.Do(ctx, apiclient.Request{
		Op:      "auth.signin",
		Method:  http.MethodPost,
		Path:    "/users/signin",
		Body:    req,
		Headers: apiclient.HeaderOptions{ContentType: apiclient.ContentJSON},
	}, &resp)
	if err != nil {
		return domain.SignInResponse{}, err
	}
	if resp.Token == "" {
		return domain.SignInResponse{}, &apiclient.APIError{
			Status:  http.StatusOK,
			Message: "Réponse de connexion invalide.",
			Kind:    apiclient.KindProtocol,
		}
	}
	return resp, nil
}

type ormValidationBody struct {
	Name   string `json:"name"`
	Error  string `json:"error"`
	Errors []struct {
		Message       string `json:"message"`
		Path          string `json:"path"`
		Type          string `json:"type"`
		ValidatorName string `json:"validatorName"`
	} `json:"errors"`
}

// signUpError rewrites backend signup failures into customer messages,
// including the ORM validation payload the backend forwards verbatim.
func signUpError(err error) error {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Status == 0 {
		return err
	}
	out := *apiErr
	var body ormValidationBody
	parsed := json.Unmarshal(apiErr.Body, &body) == nil
	switch {
	case parsed && body.Name == "SequelizeValidationError" && len(body.Errors) > 0:
		first := body.Errors[0]
		switch {
		case first.Path == "emailAddress" && first.ValidatorName == "isEmail":
			out.Message = msgInvalidEmail
			out.Kind = apiclient.KindValidation
		case first.Path == "emailAddress" && first.Type == "unique violation":
			out.Message = msgEmailTaken
			out.Kind = apiclient.KindConflict
		case first.Message != "":
			out.Message = first.Message
			out.Kind = apiclient.KindValidation
		}
	case apiErr.Status == http.StatusConflict || strings.TrimSpace(body.Error) == emailTakenRaw || strings.TrimSpace(apiErr.Raw) == emailTakenRaw:
		out.Message = msgEmailTakenSignIn
		out.Kind = apiclient.KindConflict
	case apiErr.Raw == fmt.Sprintf("Erreur %d", apiErr.Status):
		out.Message = fmt.Sprintf("Erreur lors de l'inscription (%d)", apiErr.Status)
	}
	return &out
}
