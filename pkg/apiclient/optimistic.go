package apiclient

import "context"

// Mutation は楽観的更新の1単位。
// Applyでローカル状態を先に変更し、Callでサーバーへ反映する。
// Callが失敗した場合はRollbackで補償する。
type Mutation[T any] struct {
	Apply    func()
	Call     func(ctx context.Context) (T, error)
	Rollback func(err error)
}

// Run はMutationを実行する。Callのエラーはそのまま返す。
// ApplyとRollbackはnilでもよい。
func Run[T any](ctx context.Context, m Mutation[T]) (T, error) {
	if m.Apply != nil {
		m.Apply()
	}
	result, err := m.Call(ctx)
	if err != nil {
		if m.Rollback != nil {
			m.Rollback(err)
		}
		var zero T
		return zero, err
	}
	return result, nil
}
