// Package jobs содержит раннеры заданий: Import, Match, Execute, Export
// и вспомогательное задание пересканирования плагинов.
//
// Каждый раннер — конвейер чтение → обработка → запись над ограниченным
// пакетом элементов. Ошибка чтения или обработки одного элемента логируется,
// элемент пропускается. Ошибка записи (ErrPersistence) прерывает остаток
// пакета и возвращается планировщику, который повторит задание на следующем тике.
//
// Захват запроса — атомарный условный UPDATE в хранилище. Из двух раннеров,
// претендующих на один запрос, дальше проходит ровно один; второй получает
// repo.ErrInvalidState и пропускает запрос без какой-либо работы.
package jobs
