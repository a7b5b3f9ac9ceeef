package dto

import "licensing/internal/domain"

type CreateNotificationRequest struct {
	Message string `json:"message"`
}

type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
}
