package models

import "errors"

// Таксономия ошибок конвейера. Каждая стадия ниже контроллера поглощает
// ошибки в fallback; наружу выходит только исчерпание обоих путей.
var (
	// ErrTransientRemote - сетевая ошибка, таймаут или rate-limit удаленного
	// сервиса. Допускает один повтор, затем fallback.
	ErrTransientRemote = errors.New("transient remote error")

	// ErrInvalidRemotePayload - удаленный сервис вернул некорректные данные.
	// Повтор не выполняется, сразу fallback.
	ErrInvalidRemotePayload = errors.New("invalid remote payload")

	// ErrResource - ошибка скачивания модели, диска или памяти. Фатальна,
	// только если от ресурса зависят оба пути генерации.
	ErrResource = errors.New("resource error")

	// ErrConfiguration - отсутствуют учетные данные удаленного пути.
	// Удаленный путь отключается на старте, логируется один раз.
	ErrConfiguration = errors.New("configuration error")
)
