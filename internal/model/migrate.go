package model

// All 返回需要 AutoMigrate 的全部模型。
func All() []interface{} {
	return []interface{}{&User{}, &Chat{}, &Message{}, &Vote{}, &StreamID{}}
}
