// Package model содержит доменные сущности сервиса бронирования студии.
package model

import "time"

// ServiceType описывает тип заказываемой съёмки.
type ServiceType string

const (
	ServiceBirthday   ServiceType = "birthday"
	ServiceWedding    ServiceType = "wedding"
	ServiceEngagement ServiceType = "engagement"
	ServiceGeneral    ServiceType = "general"
	ServiceOther      ServiceType = "other"
)

// Valid сообщает, входит ли значение в набор известных типов съёмки.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceBirthday, ServiceWedding, ServiceEngagement, ServiceGeneral, ServiceOther:
		return true
	}
	return false
}

// PaymentStatus описывает состояние оплаты брони.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// BookingStatus описывает состояние самой брони.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCanceled  BookingStatus = "canceled"
)

// Customer представляет клиента студии, привязанного к внешнему актору.
type Customer struct {
	ID          int64
	ActorID     int64
	DisplayName string
	Phone       string
	Email       string
	CreatedAt   time.Time
}

// ServiceSpec содержит параметры съёмки, собранные в ходе диалога.
// Структура принадлежит сессии и сериализуется в бронь целиком.
type ServiceSpec struct {
	ServiceType       ServiceType `json:"service_type"`
	GuestCount        int         `json:"guest_count,omitempty"`
	BrideName         string      `json:"bride_name,omitempty"`
	EventDate         string      `json:"event_date"`
	EventTime         string      `json:"event_time"`
	Location          string      `json:"location"`
	DurationLabel     string      `json:"duration"`
	SpecialRequests   string      `json:"special_requests,omitempty"`
	CameraCount       int         `json:"cameras"`
	CameraQuality     string      `json:"camera_quality"`
	NeedsAerialShot   bool        `json:"aerial_shot"`
	PhotographerCount int         `json:"photographers"`
	CustomBaseCost    int64       `json:"custom_base_cost,omitempty"`
}

// Reservation описывает подтверждённую бронь съёмки.
type Reservation struct {
	ID            int64
	CustomerID    *int64
	ActorID       int64
	Code          string
	ServiceType   ServiceType
	Spec          ServiceSpec
	EventDate     string
	EventTime     string
	DeliveryDate  string
	Location      string
	TotalCost     int64
	DepositAmount int64
	PaymentStatus PaymentStatus
	BookingStatus BookingStatus
	PaymentMethod string
	TransactionID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Admin представляет пользователя с правами управления бронями.
type Admin struct {
	ID       int64
	ActorID  int64
	Username string
	FullName string
	AddedBy  int64
	AddedAt  time.Time
}

// Draft хранит снимок незавершённой сессии для возобновления диалога.
type Draft struct {
	ActorID int64
	Fields  []byte
	State   string
	SavedAt time.Time
}

// Stats содержит сводную статистику студии.
type Stats struct {
	TotalCustomers        int64 `json:"total_customers"`
	TotalReservations     int64 `json:"total_reservations"`
	PendingReservations   int64 `json:"pending_reservations"`
	ConfirmedReservations int64 `json:"confirmed_reservations"`
	TotalRevenue          int64 `json:"total_revenue"`
	MonthlyRevenue        int64 `json:"monthly_revenue"`
}
