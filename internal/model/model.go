// Package model содержит доменные сущности сервиса энергосчетов.
package model

import "time"

// UserType описывает роль пользователя в системе.
type UserType string

const (
	UserTypeClient  UserType = "CLIENT"
	UserTypeAdmin   UserType = "ADMIN"
	UserTypePartner UserType = "PARTNER"
)

// User представляет зарегистрированного пользователя сервиса.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `json:"phone,omitempty"`
	CEP          string    `json:"cep,omitempty"`
	UserType     UserType  `json:"user_type"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BillStatus описывает статус обработки счета за электроэнергию.
type BillStatus string

const (
	BillStatusUploaded   BillStatus = "UPLOADED"
	BillStatusProcessing BillStatus = "PROCESSING"
	BillStatusProcessed  BillStatus = "PROCESSED"
	BillStatusFailed     BillStatus = "FAILED"
)

// Bandeira описывает тарифный флаг бразильской энергосети.
type Bandeira string

const (
	BandeiraVerde        Bandeira = "VERDE"
	BandeiraAmarela      Bandeira = "AMARELA"
	BandeiraVermelha     Bandeira = "VERMELHA"
	BandeiraEscassez     Bandeira = "ESCASSEZ_HIDRICA"
	BandeiraDesconhecida Bandeira = "DESCONHECIDA"
)

// Bill описывает счет за электроэнергию и распознанные из него поля.
// Счет создается бэкендом при загрузке файла и меняется только бэкендом
// по мере обработки; клиент его не мутирует.
type Bill struct {
	ID           int64      `json:"id"`
	Status       BillStatus `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`

	Fornecedor         string `json:"fornecedor,omitempty"`
	NumeroCliente      string `json:"numero_cliente,omitempty"`
	UnidadeConsumidora string `json:"unidade_consumidora,omitempty"`
	Instalacao         string `json:"instalacao,omitempty"`
	Endereco           string `json:"endereco,omitempty"`

	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	IssueDate   *time.Time `json:"issue_date,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	ConsumoKWh *float64 `json:"consumo_kwh,omitempty"`
	TarifaKWh  *float64 `json:"tarifa_kwh,omitempty"`
	ValorTotal *float64 `json:"valor_total,omitempty"`
	Bandeira   Bandeira `json:"bandeira_tarifaria,omitempty"`

	ICMS           *float64 `json:"icms,omitempty"`
	PIS            *float64 `json:"pis,omitempty"`
	COFINS         *float64 `json:"cofins,omitempty"`
	OutrosImpostos *float64 `json:"outros_impostos,omitempty"`

	ParsedJSON map[string]any `json:"parsed_json,omitempty"`

	FileHash    string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// TokenPair содержит пару непрозрачных bearer-токенов, выданных при входе.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// BillPage описывает одну страницу списка счетов в формате ответа API.
type BillPage struct {
	Results  []Bill  `json:"results"`
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}
