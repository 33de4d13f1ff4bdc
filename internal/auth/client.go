package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// UserInfo представляет информацию о пользователе в нашем приложении
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Photo    string `json:"photo"`
	Plan     string `json:"plan"`
	Blocked  bool   `json:"blocked"`
}

func GetUsersByIds(ctx context.Context, userIds []string) ([]UserInfo, error) {
	// Убираем пустые значения и дубликаты
	cleanIds := make([]string, 0)
	idMap := make(map[string]bool)

	for _, id := range userIds {
		id = strings.TrimSpace(id)
		if id != "" && !idMap[id] {
			cleanIds = append(cleanIds, id)
			idMap[id] = true
		}
	}

	if len(cleanIds) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(map[string][]string{"ids": cleanIds})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gClient.baseURL+"/v1/users/batch", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := gClient.http.Do(req)
	if err != nil {
		log.Printf("Error getting users from account service: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("account service returned status %d", resp.StatusCode)
	}

	var body struct {
		Users []UserInfo `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid account service response: %w", err)
	}

	return body.Users, nil
}

// PlanLimit возвращает лимит хранилища для тарифа. Это и есть
// "оракул квоты": леджер спрашивает, а не владеет цифрами тарифов.
func PlanLimit(plan string) int64 {
	switch plan {
	case "pro":
		return 107374182400 // 100GB
	default:
		return 5368709120 // 5GB
	}
}
