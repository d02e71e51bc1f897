// Package session реализует конечный автомат диалога бронирования.
//
// Автомат линейный с двумя ветками: свадьба добавляет имя невесты и число
// гостей, тип «другое» — пользовательскую базовую стоимость. Переход либо
// записывает поле и двигает состояние вперёд, либо возвращает ошибку
// валидации, оставляя состояние на месте.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/sivanpabraj/studio-m/internal/model"
	"github.com/sivanpabraj/studio-m/internal/validation"
)

// State — состояние диалога. Набор закрыт: значение вне перечисленных
// считается повреждённым и отбрасывается при загрузке черновика.
type State string

const (
	StateCollectingName              State = "collecting_name"
	StateCollectingFamilyName        State = "collecting_family_name"
	StateCollectingPhone             State = "collecting_phone"
	StateCollectingEmail             State = "collecting_email"
	StateSelectingServiceType        State = "selecting_service_type"
	StateCollectingBrideName         State = "collecting_bride_name"
	StateCollectingGuestCount        State = "collecting_guest_count"
	StateCollectingCustomCost        State = "collecting_custom_cost"
	StateCollectingEventDate         State = "collecting_event_date"
	StateCollectingEventTime         State = "collecting_event_time"
	StateCollectingLocation          State = "collecting_location"
	StateCollectingDuration          State = "collecting_duration"
	StateCollectingSpecialRequests   State = "collecting_special_requests"
	StateCollectingCameraCount       State = "collecting_camera_count"
	StateCollectingCameraQuality     State = "collecting_camera_quality"
	StateCollectingAerialPreference  State = "collecting_aerial_preference"
	StateCollectingPhotographerCount State = "collecting_photographer_count"
	StateReviewingSummary            State = "reviewing_summary"
	StatePriced                      State = "priced"
)

// Known сообщает, входит ли состояние в определённый набор.
func (s State) Known() bool {
	_, ok := transitions[s]
	return ok || s == StateReviewingSummary || s == StatePriced
}

// SkipToken — явный ответ «пропустить» для необязательных полей.
const SkipToken = "skip"

// Fields — данные, собранные по ходу диалога.
type Fields struct {
	FirstName  string            `json:"first_name"`
	FamilyName string            `json:"family_name"`
	Phone      string            `json:"phone"`
	Email      string            `json:"email,omitempty"`
	Spec       model.ServiceSpec `json:"spec"`
}

// DisplayName возвращает полное имя клиента.
func (f *Fields) DisplayName() string {
	return strings.TrimSpace(f.FirstName + " " + f.FamilyName)
}

// ValidationError описывает отклонённый ввод: поле и причину.
// Состояние диалога при этом не меняется.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) (State, *ValidationError) {
	return "", &ValidationError{Field: field, Reason: reason}
}

// Options управляют правилами валидации отдельных полей.
type Options struct {
	// StrictDates включает посимвольную проверку календарной даты вместо
	// проверки длины строки.
	StrictDates bool
}

// StartState возвращает начальное состояние диалога: знакомый клиент
// пропускает сбор личных данных.
func StartState(returning bool) State {
	if returning {
		return StateSelectingServiceType
	}
	return StateCollectingName
}

// step описывает один переход таблицы: проверить ввод, записать поле,
// вернуть следующее состояние.
type step func(f *Fields, input string, opts Options) (State, *ValidationError)

// transitions — явная таблица переходов для состояний сбора данных.
// StateReviewingSummary и StatePriced обрабатываются контроллером отдельно,
// потому что подтверждение запускает побочные эффекты.
var transitions = map[State]step{
	StateCollectingName: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		if !validation.IsValidName(input) {
			return invalid("name", "must be 2 to 50 characters")
		}
		f.FirstName = strings.TrimSpace(input)
		return StateCollectingFamilyName, nil
	},
	StateCollectingFamilyName: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		if !validation.IsValidName(input) {
			return invalid("family_name", "must be 2 to 50 characters")
		}
		f.FamilyName = strings.TrimSpace(input)
		return StateCollectingPhone, nil
	},
	StateCollectingPhone: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		if !validation.IsValidPhone(input) {
			return invalid("phone", "not a valid mobile or landline number")
		}
		f.Phone = validation.NormalizePhone(input)
		return StateCollectingEmail, nil
	},
	StateCollectingEmail: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		trimmed := strings.TrimSpace(input)
		if strings.EqualFold(trimmed, SkipToken) {
			f.Email = ""
			return StateSelectingServiceType, nil
		}
		if !validation.IsValidEmail(trimmed) {
			return invalid("email", "not a valid address; reply 'skip' to omit")
		}
		f.Email = trimmed
		return StateSelectingServiceType, nil
	},
	StateSelectingServiceType: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		st := model.ServiceType(strings.ToLower(strings.TrimSpace(input)))
		if !st.Valid() {
			return invalid("service_type", "unknown service type")
		}
		f.Spec.ServiceType = st
		switch st {
		case model.ServiceWedding:
			return StateCollectingBrideName, nil
		case model.ServiceOther:
			return StateCollectingCustomCost, nil
		default:
			return StateCollectingEventDate, nil
		}
	},
	StateCollectingBrideName: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		if !validation.IsValidName(input) {
			return invalid("bride_name", "must be 2 to 50 characters")
		}
		f.Spec.BrideName = strings.TrimSpace(input)
		return StateCollectingGuestCount, nil
	},
	StateCollectingGuestCount: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		n, ok := validation.ParseGuestCount(input)
		if !ok {
			return invalid("guest_count", "must be an integer between 1 and 10000")
		}
		f.Spec.GuestCount = n
		return StateCollectingEventDate, nil
	},
	StateCollectingCustomCost: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		v, ok := validation.ParseCustomCost(input)
		if !ok {
			return invalid("custom_cost", "must be a non-negative integer amount")
		}
		f.Spec.CustomBaseCost = v
		return StateCollectingEventDate, nil
	},
	StateCollectingEventDate: func(f *Fields, input string, opts Options) (State, *ValidationError) {
		if !validation.IsValidEventDate(input, opts.StrictDates) {
			return invalid("event_date", "not a valid event date")
		}
		f.Spec.EventDate = strings.TrimSpace(input)
		return StateCollectingEventTime, nil
	},
	StateCollectingEventTime: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		if !validation.IsValidEventTime(input) {
			return invalid("event_time", "not a valid time of day")
		}
		f.Spec.EventTime = strings.TrimSpace(input)
		return StateCollectingLocation, nil
	},
	StateCollectingLocation: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		if !validation.IsValidLocation(input) {
			return invalid("location", "must be at least 3 characters")
		}
		f.Spec.Location = strings.TrimSpace(input)
		return StateCollectingDuration, nil
	},
	StateCollectingDuration: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		if !validation.IsValidDuration(input) {
			return invalid("duration", "must be at least 2 characters")
		}
		f.Spec.DurationLabel = strings.TrimSpace(input)
		return StateCollectingSpecialRequests, nil
	},
	StateCollectingSpecialRequests: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		trimmed := strings.TrimSpace(input)
		if strings.EqualFold(trimmed, SkipToken) {
			trimmed = ""
		}
		f.Spec.SpecialRequests = trimmed
		return StateCollectingCameraCount, nil
	},
	StateCollectingCameraCount: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		n, ok := validation.ParseCameraCount(input)
		if !ok {
			return invalid("cameras", "must be an integer between 1 and 5")
		}
		f.Spec.CameraCount = n
		return StateCollectingCameraQuality, nil
	},
	StateCollectingCameraQuality: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		q, ok := cameraQualities[strings.ToLower(strings.TrimSpace(input))]
		if !ok {
			return invalid("camera_quality", "choose one of: HD, FullHD, 4K")
		}
		f.Spec.CameraQuality = q
		return StateCollectingAerialPreference, nil
	},
	StateCollectingAerialPreference: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		switch strings.ToLower(strings.TrimSpace(input)) {
		case "yes":
			f.Spec.NeedsAerialShot = true
		case "no":
			f.Spec.NeedsAerialShot = false
		default:
			return invalid("aerial_shot", "answer yes or no")
		}
		return StateCollectingPhotographerCount, nil
	},
	StateCollectingPhotographerCount: func(f *Fields, input string, _ Options) (State, *ValidationError) {
		n, ok := validation.ParsePhotographerCount(input)
		if !ok {
			return invalid("photographers", "must be an integer between 1 and 4")
		}
		f.Spec.PhotographerCount = n
		return StateReviewingSummary, nil
	},
}

var cameraQualities = map[string]string{
	"hd":     "HD",
	"fullhd": "FullHD",
	"4k":     "4K",
}

// Advance применяет ввод к текущему состоянию сбора данных. При ошибке
// валидации состояние не меняется, поле не записывается.
func Advance(state State, f *Fields, input string, opts Options) (State, *ValidationError) {
	step, ok := transitions[state]
	if !ok {
		return invalid("state", fmt.Sprintf("no input expected in state %s", state))
	}
	return step(f, input, opts)
}

// SummaryItem — одна строка сводки для подтверждения клиентом.
type SummaryItem struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Summary возвращает все собранные поля в порядке сбора. Сводка
// показывается клиенту целиком перед расчётом стоимости.
func (f *Fields) Summary() []SummaryItem {
	items := []SummaryItem{
		{Field: "name", Value: f.DisplayName()},
		{Field: "phone", Value: f.Phone},
	}
	if f.Email != "" {
		items = append(items, SummaryItem{Field: "email", Value: f.Email})
	}
	items = append(items, SummaryItem{Field: "service_type", Value: string(f.Spec.ServiceType)})
	if f.Spec.ServiceType == model.ServiceWedding {
		items = append(items,
			SummaryItem{Field: "bride_name", Value: f.Spec.BrideName},
			SummaryItem{Field: "guest_count", Value: fmt.Sprintf("%d", f.Spec.GuestCount)},
		)
	}
	if f.Spec.ServiceType == model.ServiceOther {
		items = append(items, SummaryItem{Field: "custom_base_cost", Value: fmt.Sprintf("%d", f.Spec.CustomBaseCost)})
	}
	items = append(items,
		SummaryItem{Field: "event_date", Value: f.Spec.EventDate},
		SummaryItem{Field: "event_time", Value: f.Spec.EventTime},
		SummaryItem{Field: "location", Value: f.Spec.Location},
		SummaryItem{Field: "duration", Value: f.Spec.DurationLabel},
	)
	if f.Spec.SpecialRequests != "" {
		items = append(items, SummaryItem{Field: "special_requests", Value: f.Spec.SpecialRequests})
	}
	items = append(items,
		SummaryItem{Field: "cameras", Value: fmt.Sprintf("%d", f.Spec.CameraCount)},
		SummaryItem{Field: "camera_quality", Value: f.Spec.CameraQuality},
		SummaryItem{Field: "aerial_shot", Value: yesNo(f.Spec.NeedsAerialShot)},
		SummaryItem{Field: "photographers", Value: fmt.Sprintf("%d", f.Spec.PhotographerCount)},
	)
	return items
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// Session — живое состояние диалога одного актора.
type Session struct {
	ActorID      int64
	State        State
	Fields       Fields
	LastActivity time.Time
}

// Active сообщает, идёт ли диалог.
func (s *Session) Active() bool {
	return s.State != ""
}
