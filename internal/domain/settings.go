package domain

// EmailSettings — непрозрачные настройки уведомлений.
//
// Движок не формирует писем: он передаёт настройки плагинам по ссылке
// и решает только, когда и с какими данными запросить отправку.
type EmailSettings struct {
	// Enabled — отправлять ли уведомления вообще.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// From — адрес отправителя.
	From string `yaml:"from" json:"from"`

	// SMTPHost / SMTPPort / SMTPUser — параметры транспорта.
	SMTPHost string `yaml:"smtp_host" json:"smtp_host,omitempty"`
	SMTPPort int    `yaml:"smtp_port" json:"smtp_port,omitempty"`
	SMTPUser string `yaml:"smtp_user" json:"smtp_user,omitempty"`

	// Admins — получатели уведомлений администратора.
	Admins []string `yaml:"admins" json:"admins,omitempty"`

	// Operators — получатели уведомлений оператора.
	Operators []string `yaml:"operators" json:"operators,omitempty"`
}

// Setting — пара ключ/значение из таблицы настроек.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
