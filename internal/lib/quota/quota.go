// Package quota содержит проверку лимита устройств по подписке.
package quota

// CanAddDevice сообщает, можно ли зарегистрировать ещё одно устройство
// при текущем счётчике current и лимите max. Чистая функция, определена
// для любых неотрицательных значений.
func CanAddDevice(current, max int) bool {
	return current < max
}
