package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Клиент сервиса аккаунтов. Сервис отвечает за выпуск и проверку
// токенов, блокировки пользователей и тарифные планы; здесь он
// потребляется как внешний коллаборатор.
var gClient *Client

type Client struct {
	baseURL string
	http    *http.Client
}

func InitClient(baseURL string) {
	gClient = &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type userResponse struct {
	User UserInfo `json:"user"`
}

// VerifyToken проверяет токен запроса у сервиса аккаунтов и возвращает
// ID пользователя. Заблокированные пользователи не проходят.
func VerifyToken(r *http.Request) (string, error) {
	authToken := r.Header.Get("Authorization")
	if authToken == "" {
		return "", fmt.Errorf("no authorization header")
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, gClient.baseURL+"/v1/me", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", authToken)

	resp, err := gClient.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("account service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token rejected: status %d", resp.StatusCode)
	}

	var body userResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("invalid account service response: %w", err)
	}

	if body.User.Blocked {
		return "", fmt.Errorf("user %s is blocked", body.User.ID)
	}

	return body.User.ID, nil
}
