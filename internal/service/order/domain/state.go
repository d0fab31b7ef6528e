// internal/service/order/domain/state.go
package domain

// State 订单的生命周期状态。
// 订单只在库存服务接受预占之后才会创建，所以 confirmed 是唯一可达的状态。
type State string

const StateConfirmed State = "confirmed"
